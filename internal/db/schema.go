package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/marcus/till/internal/models"
)

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// index describes an expression index over a JSON field of a collection.
type index struct {
	path   string
	unique bool
}

// indexes is the registry of queryable fields per collection. Only names
// listed here are accepted by GetAllByIndex, so callers never splice
// arbitrary text into SQL.
var indexes = map[models.Collection]map[string]index{
	models.Products:            {"barcode": {path: "$.barcode"}, "category": {path: "$.category"}},
	models.Transactions:        {"date": {path: "$.date"}},
	models.Contacts:            {"type": {path: "$.type"}},
	models.Ledgers:             {"contactId": {path: "$.contactId"}, "date": {path: "$.date"}},
	models.Settings:            {"key": {path: "$.key", unique: true}},
	models.PendingTransactions: {"timestamp": {path: "$.timestamp"}},
}

func indexExpr(path string) string {
	return fmt.Sprintf("json_extract(data, '%s')", path)
}

func collectionDDL(collections ...models.Collection) string {
	var b strings.Builder
	for _, c := range collections {
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    local_key INTEGER PRIMARY KEY AUTOINCREMENT,
    server_key TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL
);
`, c)
		for name, idx := range indexes[c] {
			unique := ""
			if idx.unique {
				unique = "UNIQUE "
			}
			fmt.Fprintf(&b, "CREATE %sINDEX IF NOT EXISTS idx_%s_%s ON %s(%s);\n",
				unique, c, name, c, indexExpr(idx.path))
		}
	}
	return b.String()
}

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order. Each one only
// creates tables or indexes; existing rows are never rewritten.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Record collections and outbox",
		SQL: collectionDDL(
			models.Products, models.Categories, models.Transactions, models.Contacts,
			models.Ledgers, models.Fees, models.Users, models.Settings,
		) + `
CREATE TABLE IF NOT EXISTS outbox (
    sequence INTEGER PRIMARY KEY AUTOINCREMENT,
    mutation_id TEXT NOT NULL UNIQUE,
    action TEXT NOT NULL,
    collection TEXT NOT NULL,
    local_key INTEGER NOT NULL,
    payload TEXT NOT NULL,
    enqueued_at TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    dead_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_entity ON outbox(collection, local_key);
`,
	},
	{
		Version:     2,
		Description: "Held sales",
		SQL:         collectionDDL(models.PendingTransactions),
	},
	{
		Version:     3,
		Description: "Sync state and conflict log",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    local_key INTEGER NOT NULL,
    server_key TEXT NOT NULL DEFAULT '',
    resolution TEXT NOT NULL,
    local_data TEXT,
    remote_data TEXT,
    resolved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_conflicts_resolved ON sync_conflicts(resolved_at);
`,
	},
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("SELECT CAST(value AS INTEGER) FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// schema_info does not exist before the first migration
		return 0, nil
	}
	return version, nil
}

// migrate applies pending migrations up to target under the write lock.
func (db *DB) migrate(target int) (int, error) {
	if target > SchemaVersion {
		return 0, fmt.Errorf("schema version %d is newer than supported %d", target, SchemaVersion)
	}
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}
	if current, _ := db.GetSchemaVersion(); current >= target {
		return 0, nil
	}

	locker := newWriteLocker(db.path)
	if err := locker.acquire(defaultTimeout); err != nil {
		return 0, err
	}
	defer locker.release()

	current, err := db.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	run := 0
	for _, m := range Migrations {
		if m.Version <= current || m.Version > target {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return run, err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return run, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
			fmt.Sprintf("%d", m.Version)); err != nil {
			tx.Rollback()
			return run, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return run, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		run++
	}
	return run, nil
}
