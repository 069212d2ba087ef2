package serverdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marcus/till/internal/models"
)

// Verdict is how the backend answered a mutation.
type Verdict int

const (
	// Applied means the mutation was stored (or was a replay of one that was).
	Applied Verdict = iota
	// Conflicted means a newer copy of the record is already stored.
	Conflicted
	// Rejected means the mutation cannot be applied as sent.
	Rejected
)

// Mutation is one change submitted by a device.
type Mutation struct {
	ID       string
	DeviceID string
	Action   models.Action
	Payload  json.RawMessage
	Force    bool
}

// Outcome is the result of applying a Mutation.
type Outcome struct {
	Verdict   Verdict
	ServerKey string
	Replayed  bool

	// Set when Conflicted. RemotePayload is JSON null for a deleted record.
	RemoteUpdatedAt string
	RemotePayload   json.RawMessage

	// Set when Rejected.
	Reason string
}

// Document is the stored state of one record.
type Document struct {
	Collection string
	ServerKey  string
	Data       json.RawMessage
	UpdatedAt  string
	Deleted    bool
	DeviceID   string
}

type payloadFields struct {
	ServerKey string `json:"serverId"`
	UpdatedAt string `json:"updatedAt"`
}

// newer reports whether stored beats incoming under last-write-wins. Ties
// and unreadable stored stamps go to the incoming write.
func newer(stored, incoming string) bool {
	s, err := models.ParseTime(stored)
	if err != nil {
		return false
	}
	in, err := models.ParseTime(incoming)
	if err != nil {
		return true
	}
	return s.After(in)
}

// setServerKey returns payload with serverId set to key.
func setServerKey(payload json.RawMessage, key string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	obj["serverId"], _ = json.Marshal(key)
	return json.Marshal(obj)
}

// Apply applies m in one transaction. A mutation ID seen before replays the
// stored answer without touching any document.
func (db *ServerDB) Apply(m Mutation) (*Outcome, error) {
	out, err := db.applyMutation(m)
	return out, db.classify(err)
}

func (db *ServerDB) applyMutation(m Mutation) (*Outcome, error) {
	if m.ID == "" {
		return &Outcome{Verdict: Rejected, Reason: "mutation_id is required"}, nil
	}
	if !m.Action.Valid() {
		return &Outcome{Verdict: Rejected, Reason: fmt.Sprintf("unknown action %q", m.Action)}, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var prior string
	err = tx.QueryRow(`SELECT server_key FROM mutations WHERE mutation_id = ?`, m.ID).Scan(&prior)
	if err == nil {
		return &Outcome{Verdict: Applied, ServerKey: prior, Replayed: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup mutation: %w", err)
	}

	out, err := apply(tx, m)
	if err != nil {
		return nil, err
	}
	if out.Verdict != Applied {
		return out, nil
	}
	if _, err := tx.Exec(`INSERT INTO mutations (mutation_id, device_id, action, server_key) VALUES (?, ?, ?, ?)`,
		m.ID, m.DeviceID, m.Action.String(), out.ServerKey); err != nil {
		return nil, fmt.Errorf("log mutation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func apply(tx *sql.Tx, m Mutation) (*Outcome, error) {
	var f payloadFields
	if err := json.Unmarshal(m.Payload, &f); err != nil {
		return &Outcome{Verdict: Rejected, Reason: "payload must be a JSON object"}, nil
	}
	coll := string(m.Action.Entity.Collection())

	key := f.ServerKey
	if key == "" {
		if m.Action.Kind != models.ActionCreate {
			return &Outcome{Verdict: Rejected, Reason: m.Action.String() + " needs a serverId"}, nil
		}
		key = uuid.NewString()
	}

	cur, err := getDocument(tx, coll, key)
	if err != nil {
		return nil, err
	}
	if cur != nil && !m.Force && newer(cur.UpdatedAt, f.UpdatedAt) {
		remote := cur.Data
		if cur.Deleted {
			remote = json.RawMessage("null")
		}
		return &Outcome{Verdict: Conflicted, ServerKey: key, RemoteUpdatedAt: cur.UpdatedAt, RemotePayload: remote}, nil
	}

	if m.Action.Kind == models.ActionDelete {
		_, err := tx.Exec(`
			INSERT INTO documents (collection, server_key, data, updated_at, deleted, device_id)
			VALUES (?, ?, NULL, ?, 1, ?)
			ON CONFLICT(collection, server_key) DO UPDATE SET
				data = NULL, updated_at = excluded.updated_at, deleted = 1,
				device_id = excluded.device_id, modified_at = CURRENT_TIMESTAMP
		`, coll, key, f.UpdatedAt, m.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("delete document: %w", err)
		}
		return &Outcome{Verdict: Applied, ServerKey: key}, nil
	}

	data, err := setServerKey(m.Payload, key)
	if err != nil {
		return &Outcome{Verdict: Rejected, Reason: err.Error()}, nil
	}
	_, err = tx.Exec(`
		INSERT INTO documents (collection, server_key, data, updated_at, deleted, device_id)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(collection, server_key) DO UPDATE SET
			data = excluded.data, updated_at = excluded.updated_at, deleted = 0,
			device_id = excluded.device_id, modified_at = CURRENT_TIMESTAMP
	`, coll, key, string(data), f.UpdatedAt, m.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	return &Outcome{Verdict: Applied, ServerKey: key}, nil
}

func getDocument(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, collection, key string) (*Document, error) {
	d := Document{Collection: collection, ServerKey: key}
	var data sql.NullString
	err := q.QueryRow(`SELECT data, updated_at, deleted, device_id FROM documents WHERE collection = ? AND server_key = ?`,
		collection, key).Scan(&data, &d.UpdatedAt, &d.Deleted, &d.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if data.Valid {
		d.Data = json.RawMessage(data.String)
	}
	return &d, nil
}

// GetDocument returns the stored state of a record, or nil if unknown.
func (db *ServerDB) GetDocument(collection models.Collection, key string) (*Document, error) {
	return getDocument(db.conn, string(collection), key)
}

// CountDocuments returns the number of live (not deleted) documents in a
// collection.
func (db *ServerDB) CountDocuments(collection models.Collection) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ? AND deleted = 0`, string(collection)).Scan(&n)
	return n, err
}
