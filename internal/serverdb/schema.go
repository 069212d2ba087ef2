package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SchemaVersion is the latest backend schema version.
const SchemaVersion = 2

// migration is one schema step, applied in its own transaction.
type migration struct {
	version     int
	description string
	sql         string
}

// migrations only ever add tables and indexes; a fresh database runs all of
// them in order.
var migrations = []migration{
	{
		version:     1,
		description: "Documents and applied mutations",
		sql: `
-- Latest state of every synced record. Deleted records keep a tombstone so
-- a stale update is answered with a conflict.
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    server_key TEXT NOT NULL,
    data TEXT,
    updated_at TEXT NOT NULL DEFAULT '',
    deleted INTEGER NOT NULL DEFAULT 0,
    device_id TEXT NOT NULL DEFAULT '',
    modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, server_key)
);

-- A retried mutation_id replays its first answer.
CREATE TABLE IF NOT EXISTS mutations (
    mutation_id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    action TEXT NOT NULL,
    server_key TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_mutations_device ON mutations(device_id);
`,
	},
	{
		version:     2,
		description: "Rate limit events",
		sql: `
CREATE TABLE IF NOT EXISTS rate_limit_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT,
    ip TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_events_created ON rate_limit_events(created_at);
`,
	},
}

// Version returns the applied schema version, 0 for an empty database.
func (db *ServerDB) Version() (int, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, db.classify(err)
	}
	return strconv.Atoi(v)
}

// migrate brings the database up to target and returns how many steps ran.
func (db *ServerDB) migrate(target int) (int, error) {
	if target > SchemaVersion {
		return 0, fmt.Errorf("schema version %d is newer than supported %d", target, SchemaVersion)
	}
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}
	current, err := db.Version()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	run := 0
	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}
		if err := db.step(m); err != nil {
			return run, err
		}
		run++
	}
	return run, nil
}

func (db *ServerDB) step(m migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(m.version)); err != nil {
		return fmt.Errorf("set version %d: %w", m.version, err)
	}
	return tx.Commit()
}
