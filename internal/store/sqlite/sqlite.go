// Package sqlite opens the on-disk sqlite backend used for single-user
// deployments (spec.md §3, state_db_path), delegating all query logic to
// sqlstore.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
	"github.com/LeJamon/ledgerbridge/internal/store/sqlstore"
)

// Open connects to the sqlite database at path (or ":memory:" for tests)
// and wraps it in a store.Store.
func Open(path string, log logging.Logger) (store.Store, error) {
	dsn := path
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes internally; a single connection avoids
	// SQLITE_BUSY under concurrent writers from the reconciliation and AI
	// worker loops.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}

	return sqlstore.New(db, sqlstore.SQLiteDialect{}, log), nil
}
