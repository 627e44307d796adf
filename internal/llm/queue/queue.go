// Package queue schedules and drains the AI interpretation job queue:
// one job per document, opt-out checked before processing, fresh document
// content fetched at processing time rather than cached at schedule time.
// Grounded on
// original_source/src/paperless_firefly/services/ai_queue.py and its
// runner counterpart
// original_source/src/paperless_firefly/review/web/management/commands/process_ai_queue.py.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
	"github.com/LeJamon/ledgerbridge/internal/llm"
	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// Config tunes job scheduling defaults.
type Config struct {
	DefaultPriority int
	MaxRetries      int
	CleanupAfter    time.Duration // jobs older than this are purged by Cleanup
}

// DefaultConfig mirrors the original's defaults (priority 0, 3 retries,
// 30-day cleanup window).
func DefaultConfig() Config {
	return Config{DefaultPriority: 0, MaxRetries: 3, CleanupAfter: 30 * 24 * time.Hour}
}

// Queue wraps store.AIJobRepository with the scheduling/processing policy
// the review workflow and a background worker loop both drive.
type Queue struct {
	store store.Store
	dms   dmsclient.Client
	llm   *llm.Service
	cfg   Config
	log   logging.Logger
}

// New builds a Queue.
func New(s store.Store, dms dmsclient.Client, llmSvc *llm.Service, cfg Config, log logging.Logger) *Queue {
	if log == nil {
		log = logging.NoOp()
	}
	return &Queue{store: s, dms: dms, llm: llmSvc, cfg: cfg, log: log.With("ai_queue")}
}

// Schedule enqueues an AI interpretation job for a document, a no-op if
// one is already active for that document (the store enforces the
// one-active-job-per-document invariant and reports created=false).
func (q *Queue) Schedule(ctx context.Context, documentID int64, extractionID *int64, externalID *string, createdBy string) (int64, bool, error) {
	job := &store.AIJob{
		DocumentID:   documentID,
		ExtractionID: extractionID,
		ExternalID:   externalID,
		Priority:     q.cfg.DefaultPriority,
		Status:       store.AIJobPending,
		MaxRetries:   q.cfg.MaxRetries,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
	}
	id, created, err := q.store.AIJobs().Schedule(ctx, job)
	if err != nil {
		return 0, false, fmt.Errorf("queue: schedule job for document %d: %w", documentID, err)
	}
	if created {
		q.log.Info("scheduled ai job", "job_id", id, "document_id", documentID, "created_by", createdBy)
	} else {
		q.log.Debug("ai job already active for document", "document_id", documentID)
	}
	return id, created, nil
}

// GetNext returns up to limit jobs ready to run now.
func (q *Queue) GetNext(ctx context.Context, limit int) ([]*store.AIJob, error) {
	return q.store.AIJobs().GetNext(ctx, limit, time.Now().UTC())
}

// ProcessOne drains a single job: checks the opt-out gate, fetches fresh
// document content, asks the LLM service for a review suggestion, and
// records the outcome on the job row. Returns nil once the job is
// completed, otherwise the error that stopped it.
func (q *Queue) ProcessOne(ctx context.Context, job *store.AIJob) error {
	now := time.Now().UTC()

	if optedOut, err := q.llm.CheckOptOut(ctx, job.DocumentID); err == nil && optedOut {
		if err := q.store.AIJobs().Start(ctx, job.ID, now); err != nil {
			return fmt.Errorf("queue: start opted-out job %d: %w", job.ID, err)
		}
		skip, _ := json.Marshal(map[string]any{"skipped": true, "reason": "AI opted out for this document"})
		return q.store.AIJobs().Complete(ctx, job.ID, string(skip), time.Now().UTC())
	}

	if err := q.store.AIJobs().Start(ctx, job.ID, now); err != nil {
		return fmt.Errorf("queue: start job %d: %w", job.ID, err)
	}

	doc, err := q.dms.GetDocument(ctx, job.DocumentID)
	if err != nil {
		_ = q.store.AIJobs().Fail(ctx, job.ID, err.Error(), time.Now().UTC())
		return fmt.Errorf("queue: fetch document %d: %w", job.DocumentID, err)
	}

	extraction, err := q.store.Extractions().GetByDocumentID(ctx, job.DocumentID)
	extractionJSON := "{}"
	if err == nil && extraction != nil {
		extractionJSON = extraction.ExtractionJSON
	}

	context := map[string]any{
		"content": doc.Content,
		"title":   doc.Title,
		"extraction": extractionJSON,
	}
	contextJSON, _ := json.Marshal(context)

	suggestion, err := q.llm.SuggestReview(ctx, job.DocumentID, string(contextJSON))
	if err != nil {
		_ = q.store.AIJobs().Fail(ctx, job.ID, err.Error(), time.Now().UTC())
		return fmt.Errorf("queue: suggest review for job %d: %w", job.ID, err)
	}

	suggestionsJSON, err := json.Marshal(suggestion)
	if err != nil {
		_ = q.store.AIJobs().Fail(ctx, job.ID, err.Error(), time.Now().UTC())
		return fmt.Errorf("queue: marshal suggestions for job %d: %w", job.ID, err)
	}

	if err := q.store.AIJobs().Complete(ctx, job.ID, string(suggestionsJSON), time.Now().UTC()); err != nil {
		return fmt.Errorf("queue: complete job %d: %w", job.ID, err)
	}
	q.log.Info("ai job completed", "job_id", job.ID, "document_id", job.DocumentID)
	return nil
}

// Fail records a job failure outside the normal ProcessOne path (used when
// a caller pre-empts processing for a reason the queue itself detected).
func (q *Queue) Fail(ctx context.Context, id int64, message string) error {
	return q.store.AIJobs().Fail(ctx, id, message, time.Now().UTC())
}

// Cancel cancels a pending job.
func (q *Queue) Cancel(ctx context.Context, id int64) error {
	return q.store.AIJobs().Cancel(ctx, id)
}

// Cleanup purges jobs older than cfg.CleanupAfter, returning the count
// removed.
func (q *Queue) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-q.cfg.CleanupAfter)
	return q.store.AIJobs().Cleanup(ctx, cutoff)
}

// Stats reports queue depth by status for operational visibility.
func (q *Queue) Stats(ctx context.Context) (store.AIJobStats, error) {
	return q.store.AIJobs().Stats(ctx)
}
