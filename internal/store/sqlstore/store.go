package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting repository code be
// written once and bound to either a bare connection or a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the shared database/sql-backed implementation of store.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logging.Logger

	documents      *documentRepo
	extractions    *extractionRepo
	imports        *importRepo
	cache          *cacheRepo
	proposals      *proposalRepo
	runs           *runRepo
	llmCache       *llmCacheRepo
	llmFeedback    *llmFeedbackRepo
	aiJobs         *aiJobRepo
	vendorMappings *vendorMappingRepo
}

// New wraps an open *sql.DB with the given dialect.
func New(db *sql.DB, dialect Dialect, log logging.Logger) *Store {
	if log == nil {
		log = logging.NoOp()
	}
	s := &Store{db: db, dialect: dialect, log: log.With("store")}
	s.documents = &documentRepo{db: db, d: dialect}
	s.extractions = &extractionRepo{db: db, d: dialect}
	s.imports = &importRepo{db: db, d: dialect}
	s.cache = &cacheRepo{db: db, d: dialect}
	s.proposals = &proposalRepo{db: db, d: dialect}
	s.runs = &runRepo{db: db, d: dialect}
	s.llmCache = &llmCacheRepo{db: db, d: dialect}
	s.llmFeedback = &llmFeedbackRepo{db: db, d: dialect}
	s.aiJobs = &aiJobRepo{db: db, d: dialect}
	s.vendorMappings = &vendorMappingRepo{db: db, d: dialect}
	return s
}

func (s *Store) Documents() store.DocumentRepository           { return s.documents }
func (s *Store) Extractions() store.ExtractionRepository       { return s.extractions }
func (s *Store) Imports() store.ImportRepository               { return s.imports }
func (s *Store) Cache() store.CacheRepository                  { return s.cache }
func (s *Store) Proposals() store.ProposalRepository           { return s.proposals }
func (s *Store) Runs() store.RunRepository                     { return s.runs }
func (s *Store) LLMCache() store.LLMCacheRepository            { return s.llmCache }
func (s *Store) LLMFeedback() store.LLMFeedbackRepository      { return s.llmFeedback }
func (s *Store) AIJobs() store.AIJobRepository                 { return s.aiJobs }
func (s *Store) VendorMappings() store.VendorMappingRepository { return s.vendorMappings }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Migrate runs every migration statement in order inside a single
// transaction, recording applied names in schema_migrations. Migrations are
// idempotent: re-running is a no-op because applied names are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMP)`,
	)); err != nil {
		return fmt.Errorf("sqlstore: create schema_migrations: %w", err)
	}

	for _, m := range s.dialect.MigrationStatements() {
		var exists int
		row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
			`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`,
		), m.Name)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("sqlstore: check migration %s: %w", m.Name, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlstore: begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlstore: apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
		), m.Name, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlstore: record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlstore: commit migration %s: %w", m.Name, err)
		}
		s.log.Info("applied migration", "name", m.Name)
	}
	return nil
}

// WithTransaction begins a transaction, invokes fn with a
// store.TransactionContext bound to it, commits on nil error, and rolls
// back on any error (including a panic, which it re-raises after rollback).
// No cross-transaction state leaks between calls.
func (s *Store) WithTransaction(ctx context.Context, fn func(store.TransactionContext) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin transaction: %w", err)
	}

	tc := &txContext{tx: tx, dialect: s.dialect}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tc); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "error", rbErr, "original", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit transaction: %w", err)
	}
	return nil
}

// txContext implements store.TransactionContext against a single *sql.Tx.
type txContext struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txContext) Documents() store.DocumentRepository {
	return &documentRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) Extractions() store.ExtractionRepository {
	return &extractionRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) Imports() store.ImportRepository {
	return &importRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) Cache() store.CacheRepository {
	return &cacheRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) Proposals() store.ProposalRepository {
	return &proposalRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) Runs() store.RunRepository {
	return &runRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) LLMCache() store.LLMCacheRepository {
	return &llmCacheRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) LLMFeedback() store.LLMFeedbackRepository {
	return &llmFeedbackRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) AIJobs() store.AIJobRepository {
	return &aiJobRepo{db: t.tx, d: t.dialect}
}
func (t *txContext) VendorMappings() store.VendorMappingRepository {
	return &vendorMappingRepo{db: t.tx, d: t.dialect}
}

func (t *txContext) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *txContext) Rollback(ctx context.Context) error { return t.tx.Rollback() }
