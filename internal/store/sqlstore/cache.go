package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type cacheRepo struct {
	db dbtx
	d  Dialect
}

func (r *cacheRepo) Upsert(ctx context.Context, entry *store.CacheEntry) error {
	query := r.d.Rebind(`
		INSERT INTO cache_entries (
			firefly_id, type, date, amount_cents, description, source_name, destination_name,
			notes, category, tags, external_id, internal_reference, synced_at,
			match_status, matched_document_id, match_confidence, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (firefly_id) DO UPDATE SET
			type = excluded.type,
			date = excluded.date,
			amount_cents = excluded.amount_cents,
			description = excluded.description,
			source_name = excluded.source_name,
			destination_name = excluded.destination_name,
			notes = excluded.notes,
			category = excluded.category,
			tags = excluded.tags,
			external_id = excluded.external_id,
			internal_reference = excluded.internal_reference,
			synced_at = excluded.synced_at,
			deleted_at = NULL
	`)
	_, err := r.db.ExecContext(ctx, query,
		entry.FireflyID, entry.Type, entry.Date, entry.Amount.Cents(), entry.Description, entry.SourceName,
		entry.DestinationName, entry.Notes, entry.Category, encodeStrings(entry.Tags), entry.ExternalID,
		entry.InternalReference, entry.SyncedAt, entry.MatchStatus, entry.MatchedDocumentID, entry.MatchConfidence,
		entry.DeletedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "cache.Upsert")
	}
	return nil
}

const cacheColumns = `firefly_id, type, date, amount_cents, description, source_name, destination_name,
	notes, category, tags, external_id, internal_reference, synced_at,
	match_status, matched_document_id, match_confidence, deleted_at`

func scanCacheEntry(scan func(dest ...any) error) (*store.CacheEntry, error) {
	var e store.CacheEntry
	var cents int64
	var tags string
	var matchedDoc sql.NullInt64
	var matchConf sql.NullFloat64
	var deletedAt sql.NullTime
	err := scan(&e.FireflyID, &e.Type, &e.Date, &cents, &e.Description, &e.SourceName, &e.DestinationName,
		&e.Notes, &e.Category, &tags, &e.ExternalID, &e.InternalReference, &e.SyncedAt,
		&e.MatchStatus, &matchedDoc, &matchConf, &deletedAt)
	if err != nil {
		return nil, err
	}
	e.Amount = canonical.NewMoneyFromCents(cents)
	e.Tags = decodeStrings(tags)
	if matchedDoc.Valid {
		v := matchedDoc.Int64
		e.MatchedDocumentID = &v
	}
	if matchConf.Valid {
		v := matchConf.Float64
		e.MatchConfidence = &v
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

func (r *cacheRepo) ListUnmatched(ctx context.Context) ([]*store.CacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+cacheColumns+` FROM cache_entries WHERE match_status = ? AND deleted_at IS NULL ORDER BY date ASC`,
	), store.MatchUnmatched)
	if err != nil {
		return nil, apperrors.Wrap(err, "cache.ListUnmatched")
	}
	defer rows.Close()

	var out []*store.CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "cache.ListUnmatched")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *cacheRepo) GetByFireflyID(ctx context.Context, fireflyID int64) (*store.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+cacheColumns+` FROM cache_entries WHERE firefly_id = ?`), fireflyID)
	e, err := scanCacheEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "cache.GetByFireflyID")
	}
	return e, nil
}

func (r *cacheRepo) UpdateMatchStatus(ctx context.Context, fireflyID int64, status store.MatchStatus, documentID *int64, confidence *float64) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE cache_entries SET match_status = ?, matched_document_id = ?, match_confidence = ? WHERE firefly_id = ?
	`), status, documentID, confidence, fireflyID)
	if err != nil {
		return apperrors.Wrap(err, "cache.UpdateMatchStatus")
	}
	return nil
}

// SoftDeleteMissing marks every cache row absent from seenFireflyIDs as
// deleted, used after a full sync to retire transactions removed upstream.
func (r *cacheRepo) SoftDeleteMissing(ctx context.Context, seenFireflyIDs []int64, syncedAt time.Time) (int, error) {
	if len(seenFireflyIDs) == 0 {
		res, err := r.db.ExecContext(ctx, r.d.Rebind(
			`UPDATE cache_entries SET deleted_at = ? WHERE deleted_at IS NULL`,
		), syncedAt)
		if err != nil {
			return 0, apperrors.Wrap(err, "cache.SoftDeleteMissing")
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	placeholders := make([]string, len(seenFireflyIDs))
	args := make([]any, 0, len(seenFireflyIDs)+1)
	args = append(args, syncedAt)
	for i, id := range seenFireflyIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := r.d.Rebind(`UPDATE cache_entries SET deleted_at = ? WHERE deleted_at IS NULL AND firefly_id NOT IN (` +
		strings.Join(placeholders, ",") + `)`)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "cache.SoftDeleteMissing")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FindLinkedForDocument scans live cache rows for one already linked to
// documentID, either by the matched_document_id column or by parsing a
// linkage marker out of external_id/internal_reference/notes. There is no
// indexed shortcut for the marker scan because the markers are opaque
// strings; this mirrors the Python original's in-memory linear scan over
// the cached transaction set.
func (r *cacheRepo) FindLinkedForDocument(ctx context.Context, documentID int64) (*store.CacheEntry, bool, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+cacheColumns+` FROM cache_entries WHERE deleted_at IS NULL`,
	))
	if err != nil {
		return nil, false, apperrors.Wrap(err, "cache.FindLinkedForDocument")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanCacheEntry(rows.Scan)
		if err != nil {
			return nil, false, apperrors.Wrap(err, "cache.FindLinkedForDocument")
		}
		if e.MatchedDocumentID != nil && *e.MatchedDocumentID == documentID {
			return e, true, nil
		}
		if id, ok := canonical.ExtractLinkedDocID(e.ExternalID, e.InternalReference, e.Notes); ok && id == documentID {
			return e, true, nil
		}
	}
	return nil, false, rows.Err()
}

func (r *cacheRepo) ClearAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return apperrors.Wrap(err, "cache.ClearAll")
	}
	return nil
}
