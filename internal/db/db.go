// Package db is the local transactional record store: one SQLite table per
// collection, an outbox of not-yet-synced mutations, and the bookkeeping
// tables the sync engine needs.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultFile is the store file name inside the data directory.
const DefaultFile = "till.db"

var (
	// ErrStoreUnavailable means the underlying storage cannot be used
	// (missing, read-only, full or corrupted). It is never retried silently.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrNotFound is returned by Get when no record exists at the key.
	ErrNotFound = errors.New("record not found")
)

// DB wraps the store connection.
type DB struct {
	conn *sql.DB
	path string

	// corrupt is sticky: once the file is known to be damaged every further
	// operation fails until the store is reopened from a restored file.
	corrupt atomic.Bool
}

// Open opens (creating if needed) the store at path and migrates it to the
// latest schema version.
func Open(path string) (*DB, error) {
	return OpenVersion(path, SchemaVersion)
}

// OpenVersion opens the store and applies migrations up to version. Opening
// an older file at a higher version only adds tables and indexes.
func OpenVersion(path string, version int) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", ErrStoreUnavailable, err)
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

	db := &DB{conn: conn, path: path}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, db.classify(fmt.Errorf("open database: %w", err))
	}
	if _, err := db.migrate(version); err != nil {
		conn.Close()
		return nil, db.classify(fmt.Errorf("run migrations: %w", err))
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the store file path.
func (db *DB) Path() string {
	return db.path
}

// usable fails fast once the store has been marked corrupt.
func (db *DB) usable() error {
	if db.corrupt.Load() {
		return fmt.Errorf("%w: store file is corrupted, restore from a backup", ErrStoreUnavailable)
	}
	return nil
}

// classify maps storage-level SQLite failures onto ErrStoreUnavailable.
// Constraint violations and other statement errors pass through unchanged.
func (db *DB) classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		db.corrupt.Store(true)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL, sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
