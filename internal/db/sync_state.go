package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/till/internal/models"
)

const (
	stateDeviceID   = "device_id"
	stateLastSyncAt = "last_sync_at"
	stateLastStatus = "last_status"
)

// Conflict is a row of the sync_conflicts log.
type Conflict struct {
	ID         int64
	Collection models.Collection
	LocalKey   int64
	ServerKey  string
	Resolution string
	LocalData  json.RawMessage
	RemoteData json.RawMessage
	ResolvedAt time.Time
}

// LogConflict persists a resolved conflict for later inspection.
func (t *Tx) LogConflict(c Conflict) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.exec(`INSERT INTO sync_conflicts (collection, local_key, server_key, resolution, local_data, remote_data, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.Collection), c.LocalKey, c.ServerKey, c.Resolution,
		nullJSON(c.LocalData), nullJSON(c.RemoteData), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// RecentConflicts returns up to limit conflicts, most recent first.
func (db *DB) RecentConflicts(ctx context.Context, limit int) ([]Conflict, error) {
	var conflicts []Conflict
	err := db.RunTx(ctx, nil, ReadOnly, func(tx *Tx) error {
		rows, err := tx.query(`
			SELECT id, collection, local_key, server_key, resolution,
			       COALESCE(local_data, 'null'), COALESCE(remote_data, 'null'), resolved_at
			FROM sync_conflicts
			ORDER BY id DESC
			LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c                   Conflict
				coll, local, remote string
				ts                  string
			)
			if err := rows.Scan(&c.ID, &coll, &c.LocalKey, &c.ServerKey, &c.Resolution, &local, &remote, &ts); err != nil {
				return err
			}
			c.Collection = models.Collection(coll)
			c.LocalData = json.RawMessage(local)
			c.RemoteData = json.RawMessage(remote)
			c.ResolvedAt, _ = time.Parse(time.RFC3339Nano, ts)
			conflicts = append(conflicts, c)
		}
		return rows.Err()
	})
	return conflicts, err
}

func (db *DB) stateValue(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := db.RunTx(ctx, nil, ReadOnly, func(tx *Tx) error {
		err := tx.tx.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return tx.db.classify(err)
		}
		found = true
		return nil
	})
	return value, found, err
}

func (t *Tx) setState(key, value string) error {
	_, err := t.exec(`INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// DeviceID returns this store's device identifier, generating and
// persisting one on first use.
func (db *DB) DeviceID(ctx context.Context) (string, error) {
	if id, ok, err := db.stateValue(ctx, stateDeviceID); err != nil || ok {
		return id, err
	}
	var id string
	err := db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		// another process may have won the race since the read above
		err := tx.tx.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, stateDeviceID).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return tx.db.classify(err)
		}
		id = uuid.NewString()
		return tx.setState(stateDeviceID, id)
	})
	return id, err
}

// SyncState is the outcome of the most recent drain.
type SyncState struct {
	LastSyncAt *time.Time
	LastStatus string
}

// GetSyncState returns the last recorded drain outcome.
func (db *DB) GetSyncState(ctx context.Context) (SyncState, error) {
	var s SyncState
	at, ok, err := db.stateValue(ctx, stateLastSyncAt)
	if err != nil {
		return s, err
	}
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			s.LastSyncAt = &t
		}
	}
	s.LastStatus, _, err = db.stateValue(ctx, stateLastStatus)
	return s, err
}

// SetSyncState records the outcome of a drain finished at at.
func (db *DB) SetSyncState(ctx context.Context, status string, at time.Time) error {
	return db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		if err := tx.setState(stateLastStatus, status); err != nil {
			return err
		}
		return tx.setState(stateLastSyncAt, at.UTC().Format(time.RFC3339Nano))
	})
}
