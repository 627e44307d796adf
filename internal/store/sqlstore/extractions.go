package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

type extractionRepo struct {
	db dbtx
	d  Dialect
}

func (r *extractionRepo) Save(ctx context.Context, ex *canonical.Extraction) (int64, error) {
	query := r.d.Rebind(`
		INSERT INTO extractions (document_id, external_id, extraction_json, overall_confidence, review_state, created_at, llm_opt_out)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			external_id = excluded.external_id,
			extraction_json = excluded.extraction_json,
			overall_confidence = excluded.overall_confidence,
			review_state = excluded.review_state
	`)
	_, err := r.db.ExecContext(ctx, query,
		ex.DocumentID, ex.ExternalID, ex.ExtractionJSON, ex.OverallConfidence, ex.ReviewState, ex.CreatedAt, ex.LLMOptOut,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "extractions.Save")
	}
	return r.idForDocument(ctx, ex.DocumentID)
}

func (r *extractionRepo) idForDocument(ctx context.Context, documentID int64) (int64, error) {
	var id int64
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT id FROM extractions WHERE document_id = ?`), documentID)
	if err := row.Scan(&id); err != nil {
		return 0, apperrors.Wrap(err, "extractions.idForDocument")
	}
	return id, nil
}

const extractionColumns = `id, document_id, external_id, extraction_json, overall_confidence, review_state, created_at, reviewed_at, review_decision, llm_opt_out`

func scanExtraction(row *sql.Row) (*canonical.Extraction, error) {
	var ex canonical.Extraction
	var reviewedAt sql.NullTime
	var decision sql.NullString
	err := row.Scan(&ex.ID, &ex.DocumentID, &ex.ExternalID, &ex.ExtractionJSON, &ex.OverallConfidence,
		&ex.ReviewState, &ex.CreatedAt, &reviewedAt, &decision, &ex.LLMOptOut)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		ex.ReviewedAt = &t
	}
	if decision.Valid {
		d := canonical.ReviewDecision(decision.String)
		ex.ReviewDecision = &d
	}
	return &ex, nil
}

func (r *extractionRepo) GetByID(ctx context.Context, id int64) (*canonical.Extraction, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+extractionColumns+` FROM extractions WHERE id = ?`), id)
	ex, err := scanExtraction(row)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractions.GetByID")
	}
	return ex, nil
}

func (r *extractionRepo) GetByExternalID(ctx context.Context, externalID string) (*canonical.Extraction, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+extractionColumns+` FROM extractions WHERE external_id = ?`), externalID)
	ex, err := scanExtraction(row)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractions.GetByExternalID")
	}
	return ex, nil
}

func (r *extractionRepo) GetByDocumentID(ctx context.Context, documentID int64) (*canonical.Extraction, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+extractionColumns+` FROM extractions WHERE document_id = ?`), documentID)
	ex, err := scanExtraction(row)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractions.GetByDocumentID")
	}
	return ex, nil
}

func (r *extractionRepo) ListPendingReview(ctx context.Context) ([]*canonical.Extraction, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+extractionColumns+` FROM extractions WHERE review_state = ? AND review_decision IS NULL ORDER BY created_at ASC`,
	), canonical.ReviewStateReview)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractions.ListPendingReview")
	}
	defer rows.Close()

	var out []*canonical.Extraction
	for rows.Next() {
		var ex canonical.Extraction
		var reviewedAt sql.NullTime
		var decision sql.NullString
		if err := rows.Scan(&ex.ID, &ex.DocumentID, &ex.ExternalID, &ex.ExtractionJSON, &ex.OverallConfidence,
			&ex.ReviewState, &ex.CreatedAt, &reviewedAt, &decision, &ex.LLMOptOut); err != nil {
			return nil, apperrors.Wrap(err, "extractions.ListPendingReview")
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			ex.ReviewedAt = &t
		}
		if decision.Valid {
			d := canonical.ReviewDecision(decision.String)
			ex.ReviewDecision = &d
		}
		out = append(out, &ex)
	}
	return out, rows.Err()
}

func (r *extractionRepo) ListReadyForMatch(ctx context.Context) ([]*canonical.Extraction, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+extractionColumns+` FROM extractions
		 WHERE review_state = ? OR review_decision IN (?, ?)
		 ORDER BY created_at ASC`,
	), canonical.ReviewStateAuto, canonical.DecisionAccepted, canonical.DecisionEdited)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractions.ListReadyForMatch")
	}
	defer rows.Close()

	var out []*canonical.Extraction
	for rows.Next() {
		var ex canonical.Extraction
		var reviewedAt sql.NullTime
		var decision sql.NullString
		if err := rows.Scan(&ex.ID, &ex.DocumentID, &ex.ExternalID, &ex.ExtractionJSON, &ex.OverallConfidence,
			&ex.ReviewState, &ex.CreatedAt, &reviewedAt, &decision, &ex.LLMOptOut); err != nil {
			return nil, apperrors.Wrap(err, "extractions.ListReadyForMatch")
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			ex.ReviewedAt = &t
		}
		if decision.Valid {
			d := canonical.ReviewDecision(decision.String)
			ex.ReviewDecision = &d
		}
		out = append(out, &ex)
	}
	return out, rows.Err()
}

func (r *extractionRepo) UpdateReviewDecision(ctx context.Context, id int64, decision canonical.ReviewDecision, rewritten *canonical.Extraction) error {
	now := time.Now().UTC()
	if rewritten != nil {
		_, err := r.db.ExecContext(ctx, r.d.Rebind(`
			UPDATE extractions SET extraction_json = ?, review_decision = ?, reviewed_at = ? WHERE id = ?
		`), rewritten.ExtractionJSON, decision, now, id)
		if err != nil {
			return apperrors.Wrap(err, "extractions.UpdateReviewDecision")
		}
		return nil
	}
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE extractions SET review_decision = ?, reviewed_at = ? WHERE id = ?
	`), decision, now, id)
	if err != nil {
		return apperrors.Wrap(err, "extractions.UpdateReviewDecision")
	}
	return nil
}

func (r *extractionRepo) ResetForReview(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE extractions SET review_decision = NULL, reviewed_at = NULL WHERE id = ?
	`), id)
	if err != nil {
		return apperrors.Wrap(err, "extractions.ResetForReview")
	}
	return nil
}

func (r *extractionRepo) SetLLMOptOut(ctx context.Context, id int64, optOut bool) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`UPDATE extractions SET llm_opt_out = ? WHERE id = ?`), optOut, id)
	if err != nil {
		return apperrors.Wrap(err, "extractions.SetLLMOptOut")
	}
	return nil
}
