package sqlite

import "database/sql"

// schema sets up the key/value table backing the local durable mirror.
// The namespace column separates users sharing one database file; the
// single-user CLI uses the empty namespace.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
    namespace TEXT NOT NULL DEFAULT '',
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
