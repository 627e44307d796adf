package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type proposalRepo struct {
	db dbtx
	d  Dialect
}

func (r *proposalRepo) Create(ctx context.Context, p *store.MatchProposal) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO match_proposals (firefly_id, document_id, match_score, match_reasons, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), p.FireflyID, p.DocumentID, p.MatchScore, encodeStrings(p.MatchReasons), p.Status, p.CreatedAt)
	if err != nil {
		return 0, apperrors.Wrap(err, "proposals.Create")
	}
	return res.LastInsertId()
}

const proposalColumns = `id, firefly_id, document_id, match_score, match_reasons, status, created_at, reviewed_at`

func scanProposal(scan func(dest ...any) error) (*store.MatchProposal, error) {
	var p store.MatchProposal
	var reasons string
	var reviewedAt sql.NullTime
	err := scan(&p.ID, &p.FireflyID, &p.DocumentID, &p.MatchScore, &reasons, &p.Status, &p.CreatedAt, &reviewedAt)
	if err != nil {
		return nil, err
	}
	p.MatchReasons = decodeStrings(reasons)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	return &p, nil
}

func (r *proposalRepo) ListPending(ctx context.Context) ([]*store.MatchProposal, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+proposalColumns+` FROM match_proposals WHERE status = ? ORDER BY match_score DESC`,
	), store.ProposalPending)
	if err != nil {
		return nil, apperrors.Wrap(err, "proposals.ListPending")
	}
	defer rows.Close()

	var out []*store.MatchProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "proposals.ListPending")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *proposalRepo) ListPendingForDocument(ctx context.Context, documentID int64) ([]*store.MatchProposal, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+proposalColumns+` FROM match_proposals WHERE status = ? AND document_id = ? ORDER BY match_score DESC`,
	), store.ProposalPending, documentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "proposals.ListPendingForDocument")
	}
	defer rows.Close()

	var out []*store.MatchProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "proposals.ListPendingForDocument")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *proposalRepo) UpdateStatus(ctx context.Context, id int64, status store.ProposalStatus) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		UPDATE match_proposals SET status = ?, reviewed_at = CURRENT_TIMESTAMP WHERE id = ?
	`), status, id)
	if err != nil {
		return apperrors.Wrap(err, "proposals.UpdateStatus")
	}
	return nil
}

func (r *proposalRepo) PurgePendingForDocument(ctx context.Context, documentID int64) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		DELETE FROM match_proposals WHERE document_id = ? AND status = ?
	`), documentID, store.ProposalPending)
	if err != nil {
		return apperrors.Wrap(err, "proposals.PurgePendingForDocument")
	}
	return nil
}

func (r *proposalRepo) FindActive(ctx context.Context, fireflyID, documentID int64) (*store.MatchProposal, bool, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(
		`SELECT `+proposalColumns+` FROM match_proposals WHERE firefly_id = ? AND document_id = ? AND status = ?`,
	), fireflyID, documentID, store.ProposalPending)
	p, err := scanProposal(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "proposals.FindActive")
	}
	return p, true, nil
}
