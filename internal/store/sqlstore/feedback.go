package sqlstore

import (
	"context"
	"database/sql"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type llmFeedbackRepo struct {
	db dbtx
	d  Dialect
}

func (r *llmFeedbackRepo) Record(ctx context.Context, fb *store.LLMFeedback) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO llm_feedback (interpretation_run_id, suggested_category, actual_category, kind, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), fb.InterpretationRunID, fb.SuggestedCategory, fb.ActualCategory, fb.Kind, fb.Notes, fb.CreatedAt)
	if err != nil {
		return 0, apperrors.Wrap(err, "feedback.Record")
	}
	return res.LastInsertId()
}

func (r *llmFeedbackRepo) Stats(ctx context.Context) (store.FeedbackStats, error) {
	var stats store.FeedbackStats
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END)
		FROM llm_feedback
	`), store.FeedbackCorrect, store.FeedbackWrong)

	var correct, wrong sql.NullInt64
	if err := row.Scan(&stats.TotalCount, &correct, &wrong); err != nil {
		return store.FeedbackStats{}, apperrors.Wrap(err, "feedback.Stats")
	}
	stats.CorrectCount = correct.Int64
	stats.WrongCount = wrong.Int64
	return stats, nil
}
