package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type vendorMappingRepo struct {
	db dbtx
	d  Dialect
}

func (r *vendorMappingRepo) Upsert(ctx context.Context, m *store.VendorMapping) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO vendor_mappings (pattern, destination_account, category, tags, use_count, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (pattern) DO UPDATE SET
			destination_account = excluded.destination_account,
			category = excluded.category,
			tags = excluded.tags,
			use_count = vendor_mappings.use_count + 1,
			updated_at = excluded.updated_at
	`), m.Pattern, m.DestinationAccount, m.Category, encodeStrings(m.Tags), time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(err, "vendormap.Upsert")
	}
	return nil
}

func (r *vendorMappingRepo) Lookup(ctx context.Context, pattern string) (*store.VendorMapping, bool, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`
		SELECT id, pattern, destination_account, category, tags, use_count, updated_at
		FROM vendor_mappings WHERE pattern = ?
	`), pattern)

	var m store.VendorMapping
	var tags string
	err := row.Scan(&m.ID, &m.Pattern, &m.DestinationAccount, &m.Category, &tags, &m.UseCount, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "vendormap.Lookup")
	}
	m.Tags = decodeStrings(tags)
	return &m, true, nil
}
