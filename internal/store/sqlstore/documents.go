package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/canonical"
)

type documentRepo struct {
	db dbtx
	d  Dialect
}

// Upsert inserts a document or, if already known, refreshes its mutable
// fields while preserving first_seen.
func (r *documentRepo) Upsert(ctx context.Context, doc *canonical.Document) error {
	query := r.d.Rebind(`
		INSERT INTO documents (document_id, source_hash, title, document_type, correspondent, tags, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			source_hash = excluded.source_hash,
			title = excluded.title,
			document_type = excluded.document_type,
			correspondent = excluded.correspondent,
			tags = excluded.tags,
			last_seen = excluded.last_seen
	`)
	_, err := r.db.ExecContext(ctx, query,
		doc.DocumentID, doc.SourceHash, doc.Title, doc.DocumentType, doc.Correspondent,
		encodeStrings(doc.Tags), doc.FirstSeen, doc.LastSeen,
	)
	if err != nil {
		return apperrors.Wrap(err, "documents.Upsert")
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, documentID int64) (*canonical.Document, error) {
	query := r.d.Rebind(`
		SELECT document_id, source_hash, title, document_type, correspondent, tags, first_seen, last_seen
		FROM documents WHERE document_id = ?
	`)
	row := r.db.QueryRowContext(ctx, query, documentID)

	var doc canonical.Document
	var tags string
	err := row.Scan(&doc.DocumentID, &doc.SourceHash, &doc.Title, &doc.DocumentType, &doc.Correspondent,
		&tags, &doc.FirstSeen, &doc.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "documents.GetByID")
	}
	doc.Tags = decodeStrings(tags)
	return &doc, nil
}
