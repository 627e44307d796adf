package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type runRepo struct {
	db dbtx
	d  Dialect
}

func (r *runRepo) Create(ctx context.Context, run *store.InterpretationRun) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO interpretation_runs (
			document_id, firefly_id, external_id, run_timestamp, duration_ms, pipeline_version, algorithm_version,
			inputs_summary, rules_applied, llm_result, final_state, decision_source, auto_applied,
			firefly_write_action, firefly_target_id, linkage_marker_written, owner_user_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.DocumentID, run.FireflyID, run.ExternalID, run.RunTimestamp, run.DurationMS, run.PipelineVersion,
		run.AlgorithmVersion, run.InputsSummary, encodeStrings(run.RulesApplied), run.LLMResult, run.FinalState,
		run.DecisionSource, run.AutoApplied, run.FireflyWriteAction, run.FireflyTargetID, run.LinkageMarkerWritten,
		run.OwnerUserID)
	if err != nil {
		return 0, apperrors.Wrap(err, "runs.Create")
	}
	return res.LastInsertId()
}

const runColumns = `id, document_id, firefly_id, external_id, run_timestamp, duration_ms, pipeline_version, algorithm_version,
	inputs_summary, rules_applied, llm_result, final_state, decision_source, auto_applied,
	firefly_write_action, firefly_target_id, linkage_marker_written, owner_user_id`

func scanRun(scan func(dest ...any) error) (*store.InterpretationRun, error) {
	var run store.InterpretationRun
	var fireflyID, fireflyTargetID, ownerUserID sql.NullInt64
	var externalID sql.NullString
	var rulesApplied string
	err := scan(&run.ID, &run.DocumentID, &fireflyID, &externalID, &run.RunTimestamp, &run.DurationMS,
		&run.PipelineVersion, &run.AlgorithmVersion, &run.InputsSummary, &rulesApplied, &run.LLMResult,
		&run.FinalState, &run.DecisionSource, &run.AutoApplied, &run.FireflyWriteAction, &fireflyTargetID,
		&run.LinkageMarkerWritten, &ownerUserID)
	if err != nil {
		return nil, err
	}
	if fireflyID.Valid {
		v := fireflyID.Int64
		run.FireflyID = &v
	}
	if externalID.Valid {
		v := externalID.String
		run.ExternalID = &v
	}
	if fireflyTargetID.Valid {
		v := fireflyTargetID.Int64
		run.FireflyTargetID = &v
	}
	if ownerUserID.Valid {
		v := ownerUserID.Int64
		run.OwnerUserID = &v
	}
	run.RulesApplied = decodeStrings(rulesApplied)
	return &run, nil
}

func (r *runRepo) ListForDocument(ctx context.Context, documentID int64) ([]*store.InterpretationRun, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(
		`SELECT `+runColumns+` FROM interpretation_runs WHERE document_id = ? ORDER BY run_timestamp ASC`,
	), documentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "runs.ListForDocument")
	}
	defer rows.Close()

	var out []*store.InterpretationRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "runs.ListForDocument")
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *runRepo) LatestForDocument(ctx context.Context, documentID int64) (*store.InterpretationRun, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(
		`SELECT `+runColumns+` FROM interpretation_runs WHERE document_id = ? ORDER BY run_timestamp DESC LIMIT 1`,
	), documentID)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "runs.LatestForDocument")
	}
	return run, nil
}
