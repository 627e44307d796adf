package sqlstore

// PostgresDialect targets lib/pq. It rewrites "?" placeholders into
// numbered "$N" parameters and uses BIGSERIAL for generated ids.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Rebind(query string) string { return rebindDollar(query) }

func (PostgresDialect) MigrationStatements() []Migration {
	return sharedMigrations(func(col string) string {
		return col + " BIGSERIAL PRIMARY KEY"
	})
}
