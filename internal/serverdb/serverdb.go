// Package serverdb is the reference backend's storage: the latest state of
// every synced document, the applied-mutation log and rate limit events.
package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrUnavailable means the backend database cannot be used (missing,
// read-only, full or corrupted). The API answers it with 503 so devices
// retry later instead of dead-lettering.
var ErrUnavailable = errors.New("backend store unavailable")

// ServerDB wraps the backend database connection.
type ServerDB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the backend database at path and migrates
// it to SchemaVersion.
func Open(path string) (*ServerDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", ErrUnavailable, err)
	}

	dsn := path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; an in-memory database also lives on a single connection
	conn.SetMaxOpenConns(1)

	db := &ServerDB{conn: conn, path: path}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, db.classify(fmt.Errorf("open database: %w", err))
	}
	if _, err := db.migrate(SchemaVersion); err != nil {
		conn.Close()
		return nil, db.classify(fmt.Errorf("run migrations: %w", err))
	}
	return db, nil
}

// Ping checks the database is reachable.
func (db *ServerDB) Ping() error {
	return db.classify(db.conn.Ping())
}

// Path returns the database file path.
func (db *ServerDB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the database.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// classify maps storage-level SQLite failures onto ErrUnavailable.
// Constraint violations and other statement errors pass through unchanged.
func (db *ServerDB) classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_FULL, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_PERM, sqlite3.SQLITE_BUSY:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
