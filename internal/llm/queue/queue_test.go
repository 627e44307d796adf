package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
	"github.com/LeJamon/ledgerbridge/internal/llm"
	"github.com/LeJamon/ledgerbridge/internal/store"
	"github.com/LeJamon/ledgerbridge/internal/store/sqlstore"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := sqlstore.New(db, sqlstore.SQLiteDialect{}, nil)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

type stubDMS struct {
	dmsclient.Client
	doc *dmsclient.Document
}

func (s *stubDMS) GetDocument(ctx context.Context, id int64) (*dmsclient.Document, error) {
	return s.doc, nil
}

func seedExtraction(t *testing.T, s store.Store, documentID int64, optOut bool) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"document_id": documentID})
	require.NoError(t, err)
	_, err = s.Extractions().Save(context.Background(), &canonical.Extraction{
		DocumentID:     documentID,
		ExternalID:     "ext",
		ExtractionJSON: string(data),
		ReviewState:    canonical.ReviewStateAuto,
		CreatedAt:      time.Now().UTC(),
		LLMOptOut:      optOut,
	})
	require.NoError(t, err)
}

func TestScheduleCreatesOneJobPerDocument(t *testing.T) {
	s := newTestStore(t)
	q := New(s, &stubDMS{}, llm.New(llm.DefaultConfig(), s, nil), DefaultConfig(), nil)
	ctx := context.Background()

	id1, created1, err := q.Schedule(ctx, 1, nil, nil, "AUTO")
	require.NoError(t, err)
	require.True(t, created1)
	require.NotZero(t, id1)

	id2, created2, err := q.Schedule(ctx, 1, nil, nil, "AUTO")
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)
}

func TestProcessOneSkipsOptedOutDocument(t *testing.T) {
	s := newTestStore(t)
	seedExtraction(t, s, 5, true)
	q := New(s, &stubDMS{doc: &dmsclient.Document{ID: 5}}, llm.New(llm.DefaultConfig(), s, nil), DefaultConfig(), nil)
	ctx := context.Background()

	id, _, err := q.Schedule(ctx, 5, nil, nil, "AUTO")
	require.NoError(t, err)

	job, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, q.ProcessOne(ctx, job))

	done, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobCompleted, done.Status)
	require.Contains(t, done.SuggestionsJSON, "skipped")
}

func TestProcessOneFailsJobWhenLLMDisabled(t *testing.T) {
	s := newTestStore(t)
	seedExtraction(t, s, 6, false)
	cfg := llm.DefaultConfig()
	cfg.Enabled = false
	q := New(s, &stubDMS{doc: &dmsclient.Document{ID: 6, Content: "groceries"}}, llm.New(cfg, s, nil), DefaultConfig(), nil)
	ctx := context.Background()

	id, _, err := q.Schedule(ctx, 6, nil, nil, "AUTO")
	require.NoError(t, err)
	job, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)

	require.Error(t, q.ProcessOne(ctx, job))

	// The failure is recorded; with retries left the job is requeued.
	done, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobPending, done.Status)
}

func TestCancelMarksJobCancelled(t *testing.T) {
	s := newTestStore(t)
	q := New(s, &stubDMS{}, llm.New(llm.DefaultConfig(), s, nil), DefaultConfig(), nil)
	ctx := context.Background()

	id, _, err := q.Schedule(ctx, 7, nil, nil, "AUTO")
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, id))

	job, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobCancelled, job.Status)
}

func TestStatsReflectsScheduledJob(t *testing.T) {
	s := newTestStore(t)
	q := New(s, &stubDMS{}, llm.New(llm.DefaultConfig(), s, nil), DefaultConfig(), nil)
	ctx := context.Background()

	_, _, err := q.Schedule(ctx, 8, nil, nil, "AUTO")
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Pending)
}
