package llm

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/store"
	"github.com/LeJamon/ledgerbridge/internal/store/sqlstore"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := sqlstore.New(db, sqlstore.SQLiteDialect{}, nil)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestParseJSONResponseDirect(t *testing.T) {
	out, err := parseJSONResponse(`{"category": "Groceries", "confidence": 0.9, "reason": "matches vendor"}`)
	require.NoError(t, err)
	require.Equal(t, "Groceries", out["category"])
}

func TestParseJSONResponseStripsMarkdownFence(t *testing.T) {
	out, err := parseJSONResponse("```json\n{\"category\": \"Utilities\", \"confidence\": 0.7}\n```")
	require.NoError(t, err)
	require.Equal(t, "Utilities", out["category"])
}

func TestParseJSONResponseExtractsArrayAsSplits(t *testing.T) {
	out, err := parseJSONResponse(`Here is the result: [{"category": "Food", "amount": 5.0}] done.`)
	require.NoError(t, err)
	require.Equal(t, true, out["should_split"])
	splits, ok := out["splits"].([]any)
	require.True(t, ok)
	require.Len(t, splits, 1)
}

func TestParseJSONResponseExtractsObjectFromMixedText(t *testing.T) {
	out, err := parseJSONResponse(`The answer is {"category": "Transport", "confidence": 0.6} as discussed.`)
	require.NoError(t, err)
	require.Equal(t, "Transport", out["category"])
}

func TestParseJSONResponseRecoversTrailingCommaAndUnquotedKeys(t *testing.T) {
	out, err := parseJSONResponse(`{category: "Health", confidence: 0.5,}`)
	require.NoError(t, err)
	require.Equal(t, "Health", out["category"])
}

func TestParseJSONResponseFailsOnEmpty(t *testing.T) {
	_, err := parseJSONResponse("")
	require.Error(t, err)
}

func TestBuildCacheKeyStableForSameInputs(t *testing.T) {
	s := New(DefaultConfig(), newTestStore(t), nil)
	s.SetCategories([]string{"Groceries", "Transport"})

	a := s.buildCacheKey("category", "REWE", "Grocery run", "42.00")
	b := s.buildCacheKey("category", "REWE", "Grocery run", "42.00")
	require.Equal(t, a, b)

	s.SetCategories([]string{"Groceries", "Transport", "Health"})
	c := s.buildCacheKey("category", "REWE", "Grocery run", "42.00")
	require.NotEqual(t, a, c)
}

func TestSuggestCategoryDisabledReturnsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := New(cfg, newTestStore(t), nil)

	_, err := s.SuggestCategory(context.Background(), 1, "REWE", "Grocery run", "42.00")
	require.ErrorIs(t, err, apperrors.ErrLLMDisabled)
}

func TestShouldAutoApplyFalseWhileDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := New(cfg, newTestStore(t), nil)
	require.False(t, s.ShouldAutoApply(context.Background(), 0.99))
}

func TestShouldAutoApplyFalseDuringCalibration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.CalibrationN = 5
	s := New(cfg, newTestStore(t), nil)
	require.True(t, s.IsCalibrating(context.Background()))
	require.False(t, s.ShouldAutoApply(context.Background(), 0.99))
}
