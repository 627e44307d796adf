package sqlstore

// SQLiteDialect targets modernc.org/sqlite. It uses "?" placeholders
// natively and INTEGER PRIMARY KEY AUTOINCREMENT for generated ids.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) MigrationStatements() []Migration {
	return sharedMigrations(func(col string) string {
		return col + " INTEGER PRIMARY KEY AUTOINCREMENT"
	})
}
