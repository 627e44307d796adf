package matching

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
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

func TestScoreAmountThresholds(t *testing.T) {
	cases := []struct {
		name     string
		proposed string
		ledger   string
		want     float64
	}{
		{"exact", "10.00", "10.00", 1.0},
		{"within_1pct", "100.00", "100.90", 0.95},
		{"within_5pct", "100.00", "104.00", 0.70},
		{"within_10pct", "100.00", "108.00", 0.40},
		{"within_20pct", "100.00", "115.00", 0.20},
		{"beyond_20pct", "100.00", "200.00", 0},
		{"ledger_zero", "10.00", "0.00", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoreAmount(canonical.MustParseMoney(tc.proposed), canonical.MustParseMoney(tc.ledger))
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestScoreDateBands(t *testing.T) {
	cases := []struct {
		name     string
		proposed string
		ledger   string
		want     float64
	}{
		{"same_day", "2024-01-10", "2024-01-10", 1.0},
		{"within_tolerance_decays", "2024-01-10", "2024-01-11", 6.0 / 7.0},
		{"at_2x_tolerance", "2024-01-01", "2024-01-12", 0.2},
		{"within_30_days", "2024-01-01", "2024-01-25", 0.1},
		{"beyond_30_days", "2024-01-01", "2024-03-01", 0},
		{"missing_side", "2024-01-01", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoreDate(tc.proposed, tc.ledger, 7)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestScoreDescription(t *testing.T) {
	require.Equal(t, 1.0, scoreDescription("Grocery Run", "grocery run"))
	require.Equal(t, 0.8, scoreDescription("Grocery", "Grocery Run"))
	require.Greater(t, scoreDescription("coffee and pastry", "coffee shop pastry box"), 0.3)
	require.Equal(t, 0.0, scoreDescription("apples", "oranges"))
	require.Equal(t, 0.0, scoreDescription("", "anything"))
}

func TestScoreVendor(t *testing.T) {
	require.Equal(t, 1.0, scoreVendor("REWE", "rewe", ""))
	require.Equal(t, 0.85, scoreVendor("REWE Markt", "REWE", ""))
	require.Equal(t, 0.6, scoreVendor("REWE Center", "REWE Nord", ""))
	require.Equal(t, 0.0, scoreVendor("REWE", "ALDI", ""))
	require.Equal(t, 1.0, scoreVendor("REWE", "", "rewe"))
}

func TestScoreSingleExactMatchFloorsScore(t *testing.T) {
	e := New(newTestStore(t), DefaultConfig())
	record := &canonical.CanonicalRecord{
		Proposal: canonical.Proposal{
			Amount:             canonical.MustParseMoney("42.00"),
			Date:               "2024-01-10",
			Description:        "Grocery run",
			DestinationAccount: "REWE",
		},
	}
	candidate := &store.CacheEntry{
		FireflyID:       99,
		Amount:          canonical.MustParseMoney("42.00"),
		Date:            "2024-01-10",
		Description:     "Unrelated text",
		DestinationName: "REWE",
	}

	result := e.ScoreSingle(record, candidate)
	require.True(t, result.IsExactMatch)
	require.GreaterOrEqual(t, result.Score, 0.99)
	require.Contains(t, result.Reasons, "EXACT_MATCH")
}

func TestFindMatchesFiltersAndRanks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Cache().Upsert(ctx, &store.CacheEntry{
		FireflyID: 1, Amount: canonical.MustParseMoney("42.00"), Date: "2024-01-10",
		Description: "Grocery run", DestinationName: "REWE", MatchStatus: store.MatchUnmatched,
	}))
	require.NoError(t, s.Cache().Upsert(ctx, &store.CacheEntry{
		FireflyID: 2, Amount: canonical.MustParseMoney("9999.00"), Date: "2020-01-01",
		Description: "Completely unrelated", DestinationName: "Nobody", MatchStatus: store.MatchUnmatched,
	}))

	e := New(s, DefaultConfig())
	record := &canonical.CanonicalRecord{
		Proposal: canonical.Proposal{
			Amount:             canonical.MustParseMoney("42.00"),
			Date:               "2024-01-10",
			Description:        "Grocery run",
			DestinationAccount: "REWE",
		},
	}

	results, err := e.FindMatches(ctx, record, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].FireflyID)
}

func TestFindMatchesRespectsMaxResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, s.Cache().Upsert(ctx, &store.CacheEntry{
			FireflyID: i, Amount: canonical.MustParseMoney("42.00"), Date: "2024-01-10",
			Description: "Grocery run", DestinationName: "REWE", MatchStatus: store.MatchUnmatched,
		}))
	}

	e := New(s, DefaultConfig())
	record := &canonical.CanonicalRecord{
		Proposal: canonical.Proposal{
			Amount: canonical.MustParseMoney("42.00"), Date: "2024-01-10",
			Description: "Grocery run", DestinationAccount: "REWE",
		},
	}

	results, err := e.FindMatches(ctx, record, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
}
