package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

type llmCacheRepo struct {
	db dbtx
	d  Dialect
}

func (r *llmCacheRepo) Get(ctx context.Context, cacheKey string, now time.Time) (*store.LLMCacheEntry, bool, error) {
	row := r.db.QueryRowContext(ctx, r.d.Rebind(`
		SELECT cache_key, model_name, prompt_version, taxonomy_version, response_text, hit_count, expires_at
		FROM llm_cache WHERE cache_key = ? AND expires_at > ?
	`), cacheKey, now)

	var e store.LLMCacheEntry
	err := row.Scan(&e.CacheKey, &e.ModelName, &e.PromptVersion, &e.TaxonomyVersion, &e.ResponseText, &e.HitCount, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, "llmcache.Get")
	}

	if _, err := r.db.ExecContext(ctx, r.d.Rebind(`UPDATE llm_cache SET hit_count = hit_count + 1 WHERE cache_key = ?`), cacheKey); err != nil {
		return nil, false, apperrors.Wrap(err, "llmcache.Get: bump hit_count")
	}
	return &e, true, nil
}

func (r *llmCacheRepo) Set(ctx context.Context, entry *store.LLMCacheEntry) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(`
		INSERT INTO llm_cache (cache_key, model_name, prompt_version, taxonomy_version, response_text, hit_count, expires_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			model_name = excluded.model_name,
			response_text = excluded.response_text,
			expires_at = excluded.expires_at
	`), entry.CacheKey, entry.ModelName, entry.PromptVersion, entry.TaxonomyVersion, entry.ResponseText, entry.ExpiresAt)
	if err != nil {
		return apperrors.Wrap(err, "llmcache.Set")
	}
	return nil
}

func (r *llmCacheRepo) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`DELETE FROM llm_cache WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, apperrors.Wrap(err, "llmcache.SweepExpired")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
