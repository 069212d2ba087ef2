package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marcus/till/internal/models"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Range bounds an index scan. Both ends are inclusive; a nil end is open.
type Range struct {
	From any
	To   any
}

// Only matches index values equal to v.
func Only(v any) Range { return Range{From: v, To: v} }

// Between matches index values in [from, to].
func Between(from, to any) Range { return Range{From: from, To: to} }

// dayEnd sorts after every timestamp that starts with a given date prefix.
const dayEnd = "\uffff"

// DateRange matches ISO-8601 values from the start of from through the end
// of to. Date-only bounds ("2024-01-31") include every timestamp on that day.
func DateRange(from, to string) Range {
	r := Range{}
	if from != "" {
		r.From = from
	}
	if to != "" {
		r.To = to + dayEnd
	}
	return r
}

// Tx is a transaction scoped to a declared set of collections. The outbox
// and sync bookkeeping tables are always reachable from a ReadWrite Tx.
type Tx struct {
	db    *DB
	tx    *sql.Tx
	ctx   context.Context
	mode  Mode
	scope map[models.Collection]bool
}

// RunTx runs fn inside one SQLite transaction spanning collections. Writes
// are all applied or none are; RunTx returns only after the commit is
// durable. fn must not call back into DB methods that open their own
// transaction.
func (db *DB) RunTx(ctx context.Context, collections []models.Collection, mode Mode, fn func(*Tx) error) error {
	if err := db.usable(); err != nil {
		return err
	}
	scope := make(map[models.Collection]bool, len(collections))
	for _, c := range collections {
		if !c.Valid() {
			return fmt.Errorf("unknown collection %q", c)
		}
		scope[c] = true
	}

	if mode == ReadWrite {
		locker := newWriteLocker(db.path)
		if err := locker.acquire(defaultTimeout); err != nil {
			return err
		}
		defer locker.release()
	}

	sqlTx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: mode == ReadOnly})
	if err != nil {
		return db.classify(fmt.Errorf("begin: %w", err))
	}
	t := &Tx{db: db, tx: sqlTx, ctx: ctx, mode: mode, scope: scope}
	if err := fn(t); err != nil {
		sqlTx.Rollback()
		return err
	}
	if mode == ReadOnly {
		sqlTx.Rollback()
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return db.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (t *Tx) check(c models.Collection, write bool) error {
	if !t.scope[c] {
		return fmt.Errorf("collection %q not declared in transaction", c)
	}
	if write && t.mode != ReadWrite {
		return fmt.Errorf("write to %q in read-only transaction", c)
	}
	return nil
}

func (t *Tx) writable() error {
	if t.mode != ReadWrite {
		return fmt.Errorf("outbox write in read-only transaction")
	}
	return nil
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	return res, t.db.classify(err)
}

func (t *Tx) query(query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	return rows, t.db.classify(err)
}

// selectRecord projects the key columns into the stored JSON so decoded
// records always carry their current local and server keys.
const selectRecord = `SELECT json_set(data, '$.id', local_key, '$.serverId', server_key) FROM `

// GetRaw returns the stored JSON of the record at key.
func (t *Tx) GetRaw(c models.Collection, key int64) (json.RawMessage, error) {
	if err := t.check(c, false); err != nil {
		return nil, err
	}
	var data string
	err := t.tx.QueryRowContext(t.ctx, selectRecord+string(c)+` WHERE local_key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", c, key, ErrNotFound)
	}
	if err != nil {
		return nil, t.db.classify(err)
	}
	return json.RawMessage(data), nil
}

// Get decodes the record at key into dst.
func (t *Tx) Get(c models.Collection, key int64, dst any) error {
	raw, err := t.GetRaw(c, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s %d: %w", c, key, err)
	}
	return nil
}

// GetAll decodes every record of c, in key order, into dst (a slice pointer).
func (t *Tx) GetAll(c models.Collection, dst any) error {
	if err := t.check(c, false); err != nil {
		return err
	}
	return t.decodeRows(dst, selectRecord+string(c)+` ORDER BY local_key`)
}

// GetAllByIndex decodes the records whose indexed field lies in r, sorted
// by that field.
func (t *Tx) GetAllByIndex(c models.Collection, name string, r Range, dst any) error {
	if err := t.check(c, false); err != nil {
		return err
	}
	idx, ok := indexes[c][name]
	if !ok {
		return fmt.Errorf("unknown index %q on %s", name, c)
	}
	expr := indexExpr(idx.path)
	var (
		where []string
		args  []any
	)
	if r.From != nil {
		where = append(where, expr+" >= ?")
		args = append(args, r.From)
	}
	if r.To != nil {
		where = append(where, expr+" <= ?")
		args = append(args, r.To)
	}
	q := selectRecord + string(c)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + expr + ", local_key"
	return t.decodeRows(dst, q, args...)
}

func (t *Tx) decodeRows(dst any, query string, args ...any) error {
	rows, err := t.query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteByte('[')
	for n := 0; rows.Next(); n++ {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.WriteString(data)
	}
	if err := rows.Err(); err != nil {
		return t.db.classify(err)
	}
	b.WriteByte(']')
	if err := json.Unmarshal([]byte(b.String()), dst); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// Put inserts rec when it has no local key and replaces it otherwise. The
// assigned key, and the server key currently on file, are written back to
// rec. An empty ServerKey never clears one already stored.
func (t *Tx) Put(c models.Collection, rec models.Record) (int64, error) {
	if err := t.check(c, true); err != nil {
		return 0, err
	}
	m := rec.RecordMeta()
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", c, err)
	}
	key, serverKey, err := t.upsert(c, m.LocalKey, m.ServerKey, data)
	if err != nil {
		return 0, err
	}
	m.LocalKey = key
	m.ServerKey = serverKey
	return key, nil
}

// PutRaw stores pre-encoded JSON at key (0 assigns a new key).
func (t *Tx) PutRaw(c models.Collection, key int64, serverKey string, data json.RawMessage) (int64, error) {
	if err := t.check(c, true); err != nil {
		return 0, err
	}
	key, _, err := t.upsert(c, key, serverKey, data)
	return key, err
}

func (t *Tx) upsert(c models.Collection, key int64, serverKey string, data []byte) (int64, string, error) {
	var keyArg any
	if key != 0 {
		keyArg = key
	}
	var (
		outKey    int64
		outServer string
	)
	err := t.tx.QueryRowContext(t.ctx, `
		INSERT INTO `+string(c)+` (local_key, server_key, data) VALUES (?, ?, ?)
		ON CONFLICT(local_key) DO UPDATE SET
			data = excluded.data,
			server_key = CASE WHEN excluded.server_key != '' THEN excluded.server_key ELSE server_key END
		RETURNING local_key, server_key
	`, keyArg, serverKey, string(data)).Scan(&outKey, &outServer)
	if err != nil {
		return 0, "", t.db.classify(fmt.Errorf("put %s: %w", c, err))
	}
	return outKey, outServer, nil
}

// Delete removes the record at key. Deleting a missing key is not an error.
func (t *Tx) Delete(c models.Collection, key int64) error {
	if err := t.check(c, true); err != nil {
		return err
	}
	_, err := t.exec(`DELETE FROM `+string(c)+` WHERE local_key = ?`, key)
	return err
}

// ServerKey returns the server key stored for the record at key and whether
// the record exists.
func (t *Tx) ServerKey(c models.Collection, key int64) (string, bool, error) {
	if err := t.check(c, false); err != nil {
		return "", false, err
	}
	var sk string
	err := t.tx.QueryRowContext(t.ctx, `SELECT server_key FROM `+string(c)+` WHERE local_key = ?`, key).Scan(&sk)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, t.db.classify(err)
	}
	return sk, true, nil
}

// SetServerKey records the backend-assigned key on an existing record.
func (t *Tx) SetServerKey(c models.Collection, key int64, serverKey string) error {
	if err := t.check(c, true); err != nil {
		return err
	}
	_, err := t.exec(`UPDATE `+string(c)+` SET server_key = ?, data = json_set(data, '$.serverId', ?) WHERE local_key = ?`,
		serverKey, serverKey, key)
	return err
}

// Clear removes every record of c.
func (t *Tx) Clear(c models.Collection) error {
	if err := t.check(c, true); err != nil {
		return err
	}
	_, err := t.exec(`DELETE FROM ` + string(c))
	return err
}

// Get decodes the record at key of c into dst.
func (db *DB) Get(ctx context.Context, c models.Collection, key int64, dst any) error {
	return db.RunTx(ctx, []models.Collection{c}, ReadOnly, func(tx *Tx) error {
		return tx.Get(c, key, dst)
	})
}

// GetAll decodes every record of c into dst.
func (db *DB) GetAll(ctx context.Context, c models.Collection, dst any) error {
	return db.RunTx(ctx, []models.Collection{c}, ReadOnly, func(tx *Tx) error {
		return tx.GetAll(c, dst)
	})
}

// GetAllByIndex decodes the records of c whose index value lies in r.
func (db *DB) GetAllByIndex(ctx context.Context, c models.Collection, name string, r Range, dst any) error {
	return db.RunTx(ctx, []models.Collection{c}, ReadOnly, func(tx *Tx) error {
		return tx.GetAllByIndex(c, name, r, dst)
	})
}

// Put upserts rec into c without recording a mutation.
func (db *DB) Put(ctx context.Context, c models.Collection, rec models.Record) (int64, error) {
	var key int64
	err := db.RunTx(ctx, []models.Collection{c}, ReadWrite, func(tx *Tx) error {
		var err error
		key, err = tx.Put(c, rec)
		return err
	})
	return key, err
}

// Delete removes the record at key without recording a mutation.
func (db *DB) Delete(ctx context.Context, c models.Collection, key int64) error {
	return db.RunTx(ctx, []models.Collection{c}, ReadWrite, func(tx *Tx) error {
		return tx.Delete(c, key)
	})
}

// ClearAll empties every collection, the outbox and the conflict log.
func (db *DB) ClearAll(ctx context.Context) error {
	return db.RunTx(ctx, models.AllCollections, ReadWrite, func(tx *Tx) error {
		for _, c := range models.AllCollections {
			if err := tx.Clear(c); err != nil {
				return err
			}
		}
		if err := tx.ClearOutbox(); err != nil {
			return err
		}
		_, err := tx.exec(`DELETE FROM sync_conflicts`)
		return err
	})
}
