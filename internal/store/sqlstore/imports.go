package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type importRepo struct {
	db dbtx
	d  Dialect
}

func (r *importRepo) Create(ctx context.Context, imp *store.Import) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO imports (external_id, document_id, status, wire_payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), imp.ExternalID, imp.DocumentID, imp.Status, imp.WirePayload, imp.CreatedAt)
	if err != nil {
		return 0, apperrors.Wrap(err, "imports.Create")
	}
	return res.LastInsertId()
}

func (r *importRepo) MarkImported(ctx context.Context, externalID string, fireflyID int64) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE imports SET status = ?, firefly_id = ?, imported_at = ? WHERE external_id = ?
	`), store.ImportImported, fireflyID, now, externalID)
	if err != nil {
		return apperrors.Wrap(err, "imports.MarkImported")
	}
	return nil
}

func (r *importRepo) MarkFailed(ctx context.Context, externalID string, errMessage string) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE imports SET status = ?, error_message = ? WHERE external_id = ?
	`), store.ImportFailed, errMessage, externalID)
	if err != nil {
		return apperrors.Wrap(err, "imports.MarkFailed")
	}
	return nil
}

func (r *importRepo) MarkSkipped(ctx context.Context, externalID string, reason string) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE imports SET status = ?, error_message = ? WHERE external_id = ?
	`), store.ImportSkipped, reason, externalID)
	if err != nil {
		return apperrors.Wrap(err, "imports.MarkSkipped")
	}
	return nil
}

func (r *importRepo) ResetForRetry(ctx context.Context, externalID string) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE imports SET status = ?, error_message = '' WHERE external_id = ?
	`), store.ImportPending, externalID)
	if err != nil {
		return apperrors.Wrap(err, "imports.ResetForRetry")
	}
	return nil
}

func (r *importRepo) ExistsByExternalID(ctx context.Context, externalID string) (*store.Import, bool, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`
		SELECT id, external_id, document_id, firefly_id, status, error_message, wire_payload, created_at, imported_at
		FROM imports WHERE external_id = ?
	`), externalID)

	var imp store.Import
	var fireflyID sql.NullInt64
	var importedAt sql.NullTime
	err := row.Scan(&imp.ID, &imp.ExternalID, &imp.DocumentID, &fireflyID, &imp.Status, &imp.ErrorMessage,
		&imp.WirePayload, &imp.CreatedAt, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "imports.ExistsByExternalID")
	}
	if fireflyID.Valid {
		v := fireflyID.Int64
		imp.FireflyID = &v
	}
	if importedAt.Valid {
		t := importedAt.Time
		imp.ImportedAt = &t
	}
	return &imp, true, nil
}
