// Package cachesync keeps the local ledger-mirror cache (store.CacheEntry
// rows) in step with the downstream ledger, the read model the matching
// engine (C9) scores candidates against without round-tripping to the
// ledger API on every comparison. Grounded on
// original_source/src/paperless_firefly/services/firefly_cache.py.
package cachesync

import (
	"context"
	"fmt"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/canonical"
	"github.com/LeJamon/ledgerbridge/internal/ledgerclient"
	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// SyncOptions controls one sync pass.
type SyncOptions struct {
	// FullSync clears the cache table before repopulating it from every
	// unlinked ledger transaction, instead of only reconciling against the
	// incremental unlinked set.
	FullSync bool
}

// SyncResult summarizes what one Sync call did.
type SyncResult struct {
	Upserted     int
	SoftDeleted  int
	Categories   int
	Duration     time.Duration
}

// Synchroniser pulls ledger transactions and categories into the local
// cache. It is not safe for concurrent Sync calls against the same
// underlying store; callers serialize through the reconciliation
// orchestrator's run lock (C10).
type Synchroniser struct {
	ledger ledgerclient.Client
	store  store.Store
	log    logging.Logger

	categories map[string]int64
}

// New builds a Synchroniser over a ledger client and state store.
func New(ledger ledgerclient.Client, s store.Store, log logging.Logger) *Synchroniser {
	if log == nil {
		log = logging.NoOp()
	}
	return &Synchroniser{ledger: ledger, store: s, log: log.With("cachesync"), categories: map[string]int64{}}
}

// Categories returns the in-process category name→id map, last rebuilt by
// the most recent Sync call.
func (s *Synchroniser) Categories() map[string]int64 {
	out := make(map[string]int64, len(s.categories))
	for k, v := range s.categories {
		out[k] = v
	}
	return out
}

// Sync refreshes the cache. A full sync clears the cache table first and
// repopulates it wholesale; an incremental sync only lists transactions the
// ledger has not yet linked to a document, upserting each, then
// soft-deletes cache rows that were previously seen as unlinked but have
// since disappeared from that set (linked elsewhere, or deleted upstream).
func (s *Synchroniser) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	start := time.Now()

	if err := s.rebuildCategories(ctx); err != nil {
		return nil, fmt.Errorf("cachesync: rebuild categories: %w", err)
	}

	if opts.FullSync {
		if err := s.store.Cache().ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("cachesync: clear cache: %w", err)
		}
	}

	transactions, err := s.ledger.ListUnlinkedTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("cachesync: list unlinked transactions: %w", err)
	}

	now := time.Now().UTC()
	seen := make([]int64, 0, len(transactions))
	upserted := 0
	for _, tx := range transactions {
		entry := toCacheEntry(tx, now)
		if err := s.store.Cache().Upsert(ctx, &entry); err != nil {
			return nil, fmt.Errorf("cachesync: upsert transaction %d: %w", tx.ID, err)
		}
		seen = append(seen, tx.ID)
		upserted++
	}

	softDeleted, err := s.store.Cache().SoftDeleteMissing(ctx, seen, now)
	if err != nil {
		return nil, fmt.Errorf("cachesync: soft-delete missing: %w", err)
	}

	s.log.Info("cache sync complete", "upserted", upserted, "soft_deleted", softDeleted, "full", opts.FullSync)

	return &SyncResult{
		Upserted:    upserted,
		SoftDeleted: softDeleted,
		Categories:  len(s.categories),
		Duration:    time.Since(start),
	}, nil
}

func (s *Synchroniser) rebuildCategories(ctx context.Context) error {
	categories, err := s.ledger.ListCategories(ctx)
	if err != nil {
		return err
	}
	rebuilt := make(map[string]int64, len(categories))
	for _, c := range categories {
		rebuilt[c.Name] = c.ID
	}
	s.categories = rebuilt
	return nil
}

func toCacheEntry(tx ledgerclient.Transaction, syncedAt time.Time) store.CacheEntry {
	amount, _ := canonical.ParseMoney(tx.Amount)
	return store.CacheEntry{
		FireflyID:         tx.ID,
		Type:              canonical.TransactionType(tx.Type),
		Date:              tx.Date,
		Amount:            amount,
		Description:       tx.Description,
		SourceName:        tx.SourceName,
		DestinationName:   tx.DestinationName,
		Notes:             tx.Notes,
		Category:          tx.CategoryName,
		Tags:              tx.Tags,
		ExternalID:        tx.ExternalID,
		InternalReference: tx.InternalReference,
		SyncedAt:          syncedAt,
		MatchStatus:       store.MatchUnmatched,
	}
}
