package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/till/internal/models"
)

// Entry is one durable, not-yet-acknowledged mutation.
type Entry struct {
	Sequence   int64
	MutationID string
	Action     models.Action
	LocalKey   int64
	Payload    json.RawMessage
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
	DeadAt     *time.Time // non-nil once dead-lettered
}

// Collection is the store collection holding the entry's record.
func (e Entry) Collection() models.Collection {
	return e.Action.Entity.Collection()
}

// Dead reports whether the entry has been dead-lettered.
func (e Entry) Dead() bool {
	return e.DeadAt != nil
}

const entryColumns = `sequence, mutation_id, action, local_key, payload, enqueued_at, attempts, last_error, dead_at`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			action   string
			payload  string
			enqueued string
			dead     sql.NullString
		)
		if err := rows.Scan(&e.Sequence, &e.MutationID, &action, &e.LocalKey, &payload,
			&enqueued, &e.Attempts, &e.LastError, &dead); err != nil {
			return nil, err
		}
		a, err := models.ParseAction(action)
		if err != nil {
			return nil, fmt.Errorf("outbox entry %d: %w", e.Sequence, err)
		}
		e.Action = a
		e.Payload = json.RawMessage(payload)
		e.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, enqueued)
		if dead.Valid {
			t, _ := time.Parse(time.RFC3339Nano, dead.String)
			e.DeadAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append durably appends a mutation whose payload is already sanitized.
func (t *Tx) Append(a models.Action, localKey int64, payload json.RawMessage) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !a.Valid() {
		return fmt.Errorf("invalid action %q", a)
	}
	_, err := t.exec(`INSERT INTO outbox (mutation_id, action, collection, local_key, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), a.String(), string(a.Entity.Collection()), localKey, string(payload),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append outbox entry: %w", err)
	}
	return nil
}

// PendingEntries returns the live entries in sequence order.
func (t *Tx) PendingEntries() ([]Entry, error) {
	rows, err := t.query(`SELECT ` + entryColumns + ` FROM outbox WHERE dead_at IS NULL ORDER BY sequence`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// EntriesFor returns every entry, dead or live, for one record.
func (t *Tx) EntriesFor(c models.Collection, localKey int64) ([]Entry, error) {
	rows, err := t.query(`SELECT `+entryColumns+` FROM outbox WHERE collection = ? AND local_key = ? ORDER BY sequence`,
		string(c), localKey)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// HasEntry reports whether the entry with sequence seq is still queued.
func (t *Tx) HasEntry(seq int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM outbox WHERE sequence = ?`, seq).Scan(&n)
	return n > 0, t.db.classify(err)
}

// RemoveEntries deletes entries by sequence and returns how many existed.
func (t *Tx) RemoveEntries(seqs ...int64) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := make([]any, len(seqs))
	for i, s := range seqs {
		args[i] = s
	}
	res, err := t.exec(`DELETE FROM outbox WHERE sequence IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// dropEntriesFor removes every queued entry for one record.
func (t *Tx) dropEntriesFor(c models.Collection, localKey int64) (int64, error) {
	res, err := t.exec(`DELETE FROM outbox WHERE collection = ? AND local_key = ?`, string(c), localKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearOutbox drops every entry, dead or live.
func (t *Tx) ClearOutbox() error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.exec(`DELETE FROM outbox`)
	return err
}

// ClearOutboxFor drops every entry, dead or live, of the given collections.
func (t *Tx) ClearOutboxFor(collections ...models.Collection) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, c := range collections {
		if _, err := t.exec(`DELETE FROM outbox WHERE collection = ?`, string(c)); err != nil {
			return err
		}
	}
	return nil
}

// PendingEntries returns the live (not dead-lettered) entries in order.
func (db *DB) PendingEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := db.RunTx(ctx, nil, ReadOnly, func(tx *Tx) error {
		var err error
		entries, err = tx.PendingEntries()
		return err
	})
	return entries, err
}

// DeadEntries returns the dead-lettered entries in order.
func (db *DB) DeadEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := db.RunTx(ctx, nil, ReadOnly, func(tx *Tx) error {
		rows, err := tx.query(`SELECT ` + entryColumns + ` FROM outbox WHERE dead_at IS NOT NULL ORDER BY sequence`)
		if err != nil {
			return err
		}
		entries, err = scanEntries(rows)
		return err
	})
	return entries, err
}

// CountPending returns the number of live entries.
func (db *DB) CountPending(ctx context.Context) (int, error) {
	var n int
	err := db.RunTx(ctx, nil, ReadOnly, func(tx *Tx) error {
		return tx.db.classify(tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE dead_at IS NULL`).Scan(&n))
	})
	return n, err
}

// RemoveEntry deletes one entry and reports whether it existed.
func (db *DB) RemoveEntry(ctx context.Context, seq int64) (bool, error) {
	var n int64
	err := db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		var err error
		n, err = tx.RemoveEntries(seq)
		return err
	})
	return n > 0, err
}

// IncrementAttempts records a failed send and returns the new attempt count.
func (db *DB) IncrementAttempts(ctx context.Context, seq int64, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var attempts int
	err := db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		err := tx.tx.QueryRowContext(ctx,
			`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE sequence = ? RETURNING attempts`,
			msg, seq).Scan(&attempts)
		if err == sql.ErrNoRows {
			return fmt.Errorf("outbox entry %d: %w", seq, ErrNotFound)
		}
		return tx.db.classify(err)
	})
	return attempts, err
}

// MarkDead dead-letters the given entries.
func (db *DB) MarkDead(ctx context.Context, seqs ...int64) error {
	if len(seqs) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		for _, seq := range seqs {
			if _, err := tx.exec(`UPDATE outbox SET dead_at = ? WHERE sequence = ? AND dead_at IS NULL`, now, seq); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequeueDead returns every dead-lettered entry to the live queue with a
// fresh attempt budget.
func (db *DB) RequeueDead(ctx context.Context) (int64, error) {
	var n int64
	err := db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		res, err := tx.exec(`UPDATE outbox SET dead_at = NULL, attempts = 0 WHERE dead_at IS NOT NULL`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// PurgeDead discards every dead-lettered entry.
func (db *DB) PurgeDead(ctx context.Context) (int64, error) {
	var n int64
	err := db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		res, err := tx.exec(`DELETE FROM outbox WHERE dead_at IS NOT NULL`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
