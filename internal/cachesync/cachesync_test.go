package cachesync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/ledgerclient"
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

// stubLedger is a minimal ledgerclient.Client fake whose fields drive test
// fixtures directly, avoiding an HTTP round trip.
type stubLedger struct {
	ledgerclient.Client
	unlinked   []ledgerclient.Transaction
	categories []ledgerclient.Category
}

func (s *stubLedger) ListUnlinkedTransactions(ctx context.Context) ([]ledgerclient.Transaction, error) {
	return s.unlinked, nil
}

func (s *stubLedger) ListCategories(ctx context.Context) ([]ledgerclient.Category, error) {
	return s.categories, nil
}

func TestSyncUpsertsUnlinkedTransactions(t *testing.T) {
	s := newTestStore(t)
	ledger := &stubLedger{
		unlinked: []ledgerclient.Transaction{
			{ID: 1, Type: "withdrawal", Date: "2024-01-01", Amount: "12.50", Description: "Coffee"},
			{ID: 2, Type: "withdrawal", Date: "2024-01-02", Amount: "40.00", Description: "Groceries"},
		},
		categories: []ledgerclient.Category{{ID: 1, Name: "Food"}},
	}
	sync := New(ledger, s, nil)

	result, err := sync.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Upserted)
	require.Equal(t, 1, result.Categories)
	require.Equal(t, int64(1), sync.Categories()["Food"])

	entries, err := s.Cache().ListUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSyncSoftDeletesTransactionsNoLongerUnlinked(t *testing.T) {
	s := newTestStore(t)
	ledger := &stubLedger{
		unlinked: []ledgerclient.Transaction{
			{ID: 1, Type: "withdrawal", Date: "2024-01-01", Amount: "12.50", Description: "Coffee"},
			{ID: 2, Type: "withdrawal", Date: "2024-01-02", Amount: "40.00", Description: "Groceries"},
		},
	}
	sync := New(ledger, s, nil)

	_, err := sync.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	// Transaction 2 is now linked elsewhere and drops out of the unlinked set.
	ledger.unlinked = []ledgerclient.Transaction{
		{ID: 1, Type: "withdrawal", Date: "2024-01-01", Amount: "12.50", Description: "Coffee"},
	}
	result, err := sync.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.SoftDeleted)

	entries, err := s.Cache().ListUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].FireflyID)
}

func TestFullSyncClearsCacheFirst(t *testing.T) {
	s := newTestStore(t)
	ledger := &stubLedger{
		unlinked: []ledgerclient.Transaction{
			{ID: 1, Type: "withdrawal", Date: "2024-01-01", Amount: "12.50", Description: "Coffee"},
		},
	}
	sync := New(ledger, s, nil)
	_, err := sync.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	ledger.unlinked = []ledgerclient.Transaction{
		{ID: 2, Type: "withdrawal", Date: "2024-02-01", Amount: "5.00", Description: "Snack"},
	}
	result, err := sync.Sync(context.Background(), SyncOptions{FullSync: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)

	entries, err := s.Cache().ListUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(2), entries[0].FireflyID)
}

func TestToCacheEntryParsesAmount(t *testing.T) {
	tx := ledgerclient.Transaction{ID: 5, Type: "deposit", Date: "2024-03-01", Amount: "99.99", Description: "Refund"}
	entry := toCacheEntry(tx, time.Now().UTC())
	require.Equal(t, "99.99", entry.Amount.String())
	require.Equal(t, store.MatchUnmatched, entry.MatchStatus)
}
