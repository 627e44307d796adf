package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
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

func TestDocumentUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &canonical.Document{
		DocumentID:   1,
		SourceHash:   "abc123",
		Title:        "Grocery receipt",
		DocumentType: "receipt",
		Correspondent: "Whole Foods",
		Tags:         []string{"groceries", "food"},
		FirstSeen:    time.Now().UTC().Truncate(time.Second),
		LastSeen:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Documents().Upsert(ctx, doc))

	got, err := s.Documents().GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, doc.Title, got.Title)
	require.ElementsMatch(t, doc.Tags, got.Tags)

	doc.Title = "Grocery receipt (revised)"
	require.NoError(t, s.Documents().Upsert(ctx, doc))
	got, err = s.Documents().GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Grocery receipt (revised)", got.Title)
}

func TestExtractionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &canonical.Document{DocumentID: 1, SourceHash: "h", Title: "t", FirstSeen: time.Now(), LastSeen: time.Now()}
	require.NoError(t, s.Documents().Upsert(ctx, doc))

	ex := &canonical.Extraction{
		DocumentID:        1,
		ExternalID:        "ext-1",
		ExtractionJSON:    `{"amount":"10.00"}`,
		OverallConfidence: 0.4,
		ReviewState:       canonical.ReviewStateReview,
		CreatedAt:         time.Now().UTC(),
	}
	id, err := s.Extractions().Save(ctx, ex)
	require.NoError(t, err)
	require.NotZero(t, id)

	pending, err := s.Extractions().ListPendingReview(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.Extractions().UpdateReviewDecision(ctx, id, canonical.DecisionAccepted, nil))

	pending, err = s.Extractions().ListPendingReview(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	got, err := s.Extractions().GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, got.ReviewDecision)
	require.Equal(t, canonical.DecisionAccepted, *got.ReviewDecision)
}

func TestImportLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Imports().Create(ctx, &store.Import{
		ExternalID: "ext-1",
		DocumentID: 1,
		Status:     store.ImportPending,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, found, err := s.Imports().ExistsByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, s.Imports().MarkImported(ctx, "ext-1", 42))
	imp, found, err := s.Imports().ExistsByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.ImportImported, imp.Status)
	require.NotNil(t, imp.FireflyID)
	require.Equal(t, int64(42), *imp.FireflyID)
}

func TestCacheUnmatchedAndSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &store.CacheEntry{
		FireflyID:   100,
		Type:        canonical.TransactionWithdrawal,
		Date:        "2026-01-01",
		Amount:      canonical.NewMoneyFromCents(1500),
		Description: "Coffee",
		MatchStatus: store.MatchUnmatched,
		SyncedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.Cache().Upsert(ctx, entry))

	unmatched, err := s.Cache().ListUnmatched(ctx)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	require.Equal(t, int64(1500), unmatched[0].Amount.Cents())

	n, err := s.Cache().SoftDeleteMissing(ctx, []int64{}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	unmatched, err = s.Cache().ListUnmatched(ctx)
	require.NoError(t, err)
	require.Empty(t, unmatched)
}

func TestProposalLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Proposals().Create(ctx, &store.MatchProposal{
		FireflyID:    100,
		DocumentID:   1,
		MatchScore:   0.82,
		MatchReasons: []string{"exact_amount", "date_within_window"},
		Status:       store.ProposalPending,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	pending, err := s.Proposals().ListPendingForDocument(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)

	require.NoError(t, s.Proposals().UpdateStatus(ctx, id, store.ProposalAccepted))
	pending, err = s.Proposals().ListPendingForDocument(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestAIJobQueueSingleActivePerDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, created, err := s.AIJobs().Schedule(ctx, &store.AIJob{
		DocumentID: 1,
		Priority:   5,
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)

	id2, created, err := s.AIJobs().Schedule(ctx, &store.AIJob{
		DocumentID: 1,
		Priority:   10,
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id1, id2)

	jobs, err := s.AIJobs().GetNext(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, s.AIJobs().Start(ctx, id1, time.Now().UTC()))
	require.NoError(t, s.AIJobs().Complete(ctx, id1, `{"category":"Food"}`, time.Now().UTC()))

	stats, err := s.AIJobs().Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Completed)
}

func TestAIJobRetryBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.AIJobs().Schedule(ctx, &store.AIJob{
		DocumentID: 2,
		MaxRetries: 2,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.AIJobs().Fail(ctx, id, "timeout", time.Now().UTC()))
	job, err := s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobPending, job.Status)

	require.NoError(t, s.AIJobs().Fail(ctx, id, "timeout again", time.Now().UTC()))
	job, err = s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobPending, job.Status)

	// retry_count has reached max_retries (2), so the third failure is terminal.
	require.NoError(t, s.AIJobs().Fail(ctx, id, "timeout a third time", time.Now().UTC()))
	job, err = s.AIJobs().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.AIJobFailed, job.Status)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errIntentional
	err := s.WithTransaction(ctx, func(tc store.TransactionContext) error {
		if err := tc.Documents().Upsert(ctx, &canonical.Document{
			DocumentID: 5, SourceHash: "h", Title: "t", FirstSeen: time.Now(), LastSeen: time.Now(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = s.Documents().GetByID(ctx, 5)
	require.Error(t, err)
}

func TestVendorMappingLearning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.VendorMappings().Upsert(ctx, &store.VendorMapping{
		Pattern:            "whole foods",
		DestinationAccount: "Groceries",
		Category:           "Food",
		Tags:               []string{"recurring"},
	}))

	m, found, err := s.VendorMappings().Lookup(ctx, "whole foods")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), m.UseCount)

	require.NoError(t, s.VendorMappings().Upsert(ctx, &store.VendorMapping{
		Pattern:            "whole foods",
		DestinationAccount: "Groceries",
		Category:           "Food",
	}))
	m, _, err = s.VendorMappings().Lookup(ctx, "whole foods")
	require.NoError(t, err)
	require.Equal(t, int64(2), m.UseCount)
}

var errIntentional = errors.New("intentional failure")
