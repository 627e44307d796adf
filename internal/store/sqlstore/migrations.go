package sqlstore

// sharedMigrationBody holds the part of the schema identical across
// dialects; pkType is substituted per-dialect for the autoincrementing
// primary key declaration ("INTEGER PRIMARY KEY AUTOINCREMENT" for sqlite,
// "BIGSERIAL PRIMARY KEY" for postgres).
func sharedMigrations(pk func(col string) string) []Migration {
	return []Migration{
		{
			Name: "0001_documents",
			SQL: `CREATE TABLE documents (
				document_id BIGINT PRIMARY KEY,
				source_hash TEXT NOT NULL,
				title TEXT NOT NULL,
				document_type TEXT NOT NULL DEFAULT '',
				correspondent TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				first_seen TIMESTAMP NOT NULL,
				last_seen TIMESTAMP NOT NULL
			)`,
		},
		{
			Name: "0002_extractions",
			SQL: `CREATE TABLE extractions (
				` + pk("id") + `,
				document_id BIGINT NOT NULL UNIQUE REFERENCES documents(document_id),
				external_id TEXT NOT NULL UNIQUE,
				extraction_json TEXT NOT NULL,
				overall_confidence DOUBLE PRECISION NOT NULL,
				review_state TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				reviewed_at TIMESTAMP,
				review_decision TEXT,
				llm_opt_out BOOLEAN NOT NULL DEFAULT FALSE
			)`,
		},
		{
			Name: "0003_imports",
			SQL: `CREATE TABLE imports (
				` + pk("id") + `,
				external_id TEXT NOT NULL UNIQUE,
				document_id BIGINT NOT NULL,
				firefly_id BIGINT,
				status TEXT NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				wire_payload TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				imported_at TIMESTAMP
			)`,
		},
		{
			Name: "0004_cache_entries",
			SQL: `CREATE TABLE cache_entries (
				firefly_id BIGINT PRIMARY KEY,
				type TEXT NOT NULL,
				date TEXT NOT NULL,
				amount_cents BIGINT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				source_name TEXT NOT NULL DEFAULT '',
				destination_name TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				external_id TEXT NOT NULL DEFAULT '',
				internal_reference TEXT NOT NULL DEFAULT '',
				synced_at TIMESTAMP NOT NULL,
				match_status TEXT NOT NULL DEFAULT 'UNMATCHED',
				matched_document_id BIGINT,
				match_confidence DOUBLE PRECISION,
				deleted_at TIMESTAMP
			)`,
		},
		{
			Name: "0005_match_proposals",
			SQL: `CREATE TABLE match_proposals (
				` + pk("id") + `,
				firefly_id BIGINT NOT NULL,
				document_id BIGINT NOT NULL,
				match_score DOUBLE PRECISION NOT NULL,
				match_reasons TEXT NOT NULL DEFAULT '[]',
				status TEXT NOT NULL DEFAULT 'PENDING',
				created_at TIMESTAMP NOT NULL,
				reviewed_at TIMESTAMP
			)`,
		},
		{
			Name: "0006_interpretation_runs",
			SQL: `CREATE TABLE interpretation_runs (
				` + pk("id") + `,
				document_id BIGINT NOT NULL,
				firefly_id BIGINT,
				external_id TEXT,
				run_timestamp TIMESTAMP NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				pipeline_version TEXT NOT NULL DEFAULT '',
				algorithm_version TEXT NOT NULL DEFAULT '',
				inputs_summary TEXT NOT NULL DEFAULT '',
				rules_applied TEXT NOT NULL DEFAULT '[]',
				llm_result TEXT NOT NULL DEFAULT '',
				final_state TEXT NOT NULL,
				decision_source TEXT NOT NULL,
				auto_applied BOOLEAN NOT NULL DEFAULT FALSE,
				firefly_write_action TEXT NOT NULL DEFAULT '',
				firefly_target_id BIGINT,
				linkage_marker_written TEXT NOT NULL DEFAULT '',
				owner_user_id BIGINT
			)`,
		},
		{
			Name: "0007_llm_cache",
			SQL: `CREATE TABLE llm_cache (
				cache_key TEXT PRIMARY KEY,
				model_name TEXT NOT NULL,
				prompt_version TEXT NOT NULL,
				taxonomy_version TEXT NOT NULL,
				response_text TEXT NOT NULL,
				hit_count BIGINT NOT NULL DEFAULT 0,
				expires_at TIMESTAMP NOT NULL
			)`,
		},
		{
			Name: "0008_llm_feedback",
			SQL: `CREATE TABLE llm_feedback (
				` + pk("id") + `,
				interpretation_run_id BIGINT NOT NULL REFERENCES interpretation_runs(id),
				suggested_category TEXT NOT NULL DEFAULT '',
				actual_category TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			)`,
		},
		{
			Name: "0009_ai_jobs",
			SQL: `CREATE TABLE ai_jobs (
				` + pk("id") + `,
				document_id BIGINT NOT NULL,
				extraction_id BIGINT,
				external_id TEXT,
				priority INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				scheduled_for TIMESTAMP,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				started_at TIMESTAMP,
				completed_at TIMESTAMP,
				error_message TEXT NOT NULL DEFAULT '',
				suggestions_json TEXT NOT NULL DEFAULT ''
			)`,
		},
		{
			Name: "0010_vendor_mappings",
			SQL: `CREATE TABLE vendor_mappings (
				` + pk("id") + `,
				pattern TEXT NOT NULL UNIQUE,
				destination_account TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				use_count BIGINT NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
		{
			Name: "0011_index_cache_match_status",
			SQL:  `CREATE INDEX idx_cache_entries_match_status ON cache_entries(match_status)`,
		},
		{
			Name: "0012_index_proposals_status",
			SQL:  `CREATE INDEX idx_match_proposals_status ON match_proposals(status)`,
		},
		{
			Name: "0013_index_ai_jobs_status",
			SQL:  `CREATE INDEX idx_ai_jobs_status ON ai_jobs(status)`,
		},
		{
			Name: "0014_index_runs_document",
			SQL:  `CREATE INDEX idx_interpretation_runs_document ON interpretation_runs(document_id)`,
		},
	}
}
