package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type aiJobRepo struct {
	db dbtx
	d  Dialect
}

// Schedule enqueues a job unless one is already PENDING or PROCESSING for
// the same document, preserving the one-active-job-per-document invariant.
func (r *aiJobRepo) Schedule(ctx context.Context, job *store.AIJob) (int64, bool, error) {
	active, found, err := r.ActiveForDocument(ctx, job.DocumentID)
	if err != nil {
		return 0, false, apperrors.Wrap(err, "aijobs.Schedule")
	}
	if found {
		return active.ID, false, nil
	}

	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO ai_jobs (
			document_id, extraction_id, external_id, priority, status, retry_count, max_retries,
			scheduled_for, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
	`), job.DocumentID, job.ExtractionID, job.ExternalID, job.Priority, store.AIJobPending, job.MaxRetries,
		job.ScheduledFor, job.CreatedBy, job.CreatedAt)
	if err != nil {
		return 0, false, apperrors.Wrap(err, "aijobs.Schedule")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, apperrors.Wrap(err, "aijobs.Schedule")
	}
	return id, true, nil
}

const aiJobColumns = `id, document_id, extraction_id, external_id, priority, status, retry_count, max_retries,
	scheduled_for, created_by, created_at, started_at, completed_at, error_message, suggestions_json`

func scanAIJob(scan func(dest ...any) error) (*store.AIJob, error) {
	var j store.AIJob
	var scheduledFor, startedAt, completedAt sql.NullTime
	var extractionIDVal sql.NullInt64
	var externalID sql.NullString
	err := scan(&j.ID, &j.DocumentID, &extractionIDVal, &externalID, &j.Priority, &j.Status, &j.RetryCount,
		&j.MaxRetries, &scheduledFor, &j.CreatedBy, &j.CreatedAt, &startedAt, &completedAt, &j.ErrorMessage,
		&j.SuggestionsJSON)
	if err != nil {
		return nil, err
	}
	if extractionIDVal.Valid {
		v := extractionIDVal.Int64
		j.ExtractionID = &v
	}
	if externalID.Valid {
		v := externalID.String
		j.ExternalID = &v
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		j.ScheduledFor = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// GetNext returns up to limit PENDING jobs whose scheduled_for has arrived,
// ordered by priority descending then age ascending (spec.md §8, job
// queue ordering).
func (r *aiJobRepo) GetNext(ctx context.Context, limit int, now time.Time) ([]*store.AIJob, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+aiJobColumns+` FROM ai_jobs
		 WHERE status = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)
		 ORDER BY priority DESC, created_at ASC
		 LIMIT ?`,
	), store.AIJobPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "aijobs.GetNext")
	}
	defer rows.Close()

	var out []*store.AIJob
	for rows.Next() {
		j, err := scanAIJob(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "aijobs.GetNext")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *aiJobRepo) Start(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE ai_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`), store.AIJobProcessing, now, id, store.AIJobPending)
	if err != nil {
		return apperrors.Wrap(err, "aijobs.Start")
	}
	return nil
}

func (r *aiJobRepo) Complete(ctx context.Context, id int64, suggestionsJSON string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE ai_jobs SET status = ?, suggestions_json = ?, completed_at = ? WHERE id = ?
	`), store.AIJobCompleted, suggestionsJSON, now, id)
	if err != nil {
		return apperrors.Wrap(err, "aijobs.Complete")
	}
	return nil
}

// Fail records the error and either re-queues the job (retry_count <
// max_retries) as PENDING, or marks it terminally FAILED.
func (r *aiJobRepo) Fail(ctx context.Context, id int64, errMessage string, now time.Time) error {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT retry_count, max_retries FROM ai_jobs WHERE id = ?`), id)
	var retryCount, maxRetries int
	if err := row.Scan(&retryCount, &maxRetries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return apperrors.Wrap(err, "aijobs.Fail")
	}

	if retryCount < maxRetries {
		_, err := r.db.ExecContext(ctx, r.d.Rebind(`
			UPDATE ai_jobs SET status = ?, retry_count = retry_count + 1, error_message = ?, started_at = NULL WHERE id = ?
		`), store.AIJobPending, errMessage, id)
		if err != nil {
			return apperrors.Wrap(err, "aijobs.Fail")
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE ai_jobs SET status = ?, retry_count = retry_count + 1, error_message = ?, completed_at = ? WHERE id = ?
	`), store.AIJobFailed, errMessage, now, id)
	if err != nil {
		return apperrors.Wrap(err, "aijobs.Fail")
	}
	return nil
}

func (r *aiJobRepo) Cancel(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE ai_jobs SET status = ? WHERE id = ? AND status IN (?, ?)
	`), store.AIJobCancelled, id, store.AIJobPending, store.AIJobProcessing)
	if err != nil {
		return apperrors.Wrap(err, "aijobs.Cancel")
	}
	return nil
}

func (r *aiJobRepo) GetByID(ctx context.Context, id int64) (*store.AIJob, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+aiJobColumns+` FROM ai_jobs WHERE id = ?`), id)
	j, err := scanAIJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "aijobs.GetByID")
	}
	return j, nil
}

func (r *aiJobRepo) ActiveForDocument(ctx context.Context, documentID int64) (*store.AIJob, bool, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(
		`SELECT `+aiJobColumns+` FROM ai_jobs WHERE document_id = ? AND status IN (?, ?) ORDER BY created_at DESC LIMIT 1`,
	), documentID, store.AIJobPending, store.AIJobProcessing)
	j, err := scanAIJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "aijobs.ActiveForDocument")
	}
	return j, true, nil
}

func (r *aiJobRepo) Stats(ctx context.Context) (store.AIJobStats, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`
		SELECT
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END)
		FROM ai_jobs
	`), store.AIJobPending, store.AIJobProcessing, store.AIJobCompleted, store.AIJobFailed, store.AIJobCancelled)

	var stats store.AIJobStats
	var pending, processing, completed, failed, cancelled sql.NullInt64
	if err := row.Scan(&pending, &processing, &completed, &failed, &cancelled); err != nil {
		return store.AIJobStats{}, apperrors.Wrap(err, "aijobs.Stats")
	}
	stats.Pending = pending.Int64
	stats.Processing = processing.Int64
	stats.Completed = completed.Int64
	stats.Failed = failed.Int64
	stats.Cancelled = cancelled.Int64
	return stats, nil
}

// Cleanup deletes terminal (COMPLETED/FAILED/CANCELLED) jobs created before
// olderThan, bounding table growth.
func (r *aiJobRepo) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		DELETE FROM ai_jobs WHERE status IN (?, ?, ?) AND created_at < ?
	`), store.AIJobCompleted, store.AIJobFailed, store.AIJobCancelled, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "aijobs.Cleanup")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
