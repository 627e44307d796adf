// Package sqlstore implements store.Store once, against database/sql, in
// the style of the teacher's internal/storage/relationaldb/postgres
// package. A Dialect isolates the handful of places sqlite and postgres
// differ (placeholder style, autoincrement/serial, migration DDL); the
// repository logic itself — query shape, transaction handling, row
// scanning — is shared.
package sqlstore

import "strings"

// Dialect isolates SQL-surface differences between backends.
type Dialect interface {
	// Name identifies the dialect for logging ("sqlite", "postgres").
	Name() string
	// Rebind rewrites a query written with "?" placeholders into the
	// dialect's native placeholder style (no-op for sqlite, "$1".."$N" for
	// postgres).
	Rebind(query string) string
	// MigrationStatements returns the ordered list of (name, DDL) pairs
	// applied by Migrate, dialect-specific only in primary-key/autoincrement
	// syntax.
	MigrationStatements() []Migration
}

// Migration is one named, idempotent DDL step.
type Migration struct {
	Name string
	SQL  string
}

// rebindDollar rewrites sequential "?" placeholders into "$1", "$2", ... for
// dialects (postgres) that require numbered parameters.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
