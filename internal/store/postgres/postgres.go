// Package postgres opens the postgres backend used for multi-user or
// server deployments of the state store, delegating all query logic to
// sqlstore.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/store"
	"github.com/LeJamon/ledgerbridge/internal/store/sqlstore"
)

// Open connects to the postgres database identified by dsn (a standard
// "postgres://" connection string) and wraps it in a store.Store.
func Open(dsn string, log logging.Logger) (store.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return sqlstore.New(db, sqlstore.PostgresDialect{}, log), nil
}
