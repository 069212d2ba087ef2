package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/sanitize"
)

// marshalPayload sanitizes rec for the backend and encodes it.
func marshalPayload(rec models.Record) ([]byte, error) {
	data, err := json.Marshal(sanitize.Record(rec, sanitize.ForOutbox))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Record appends one mutation for rec to the outbox, inside the caller's
// transaction so the entry commits together with the write it describes.
//
// A DELETE of a record the backend has never acknowledged cancels the
// record's queued entries instead of appending. When nothing was queued
// (its CREATE is already on the wire) the DELETE is appended anyway and the
// sync engine resolves it once the CREATE is acknowledged.
func (t *Tx) Record(a models.Action, rec models.Record) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := rec.RecordMeta()
	if m.LocalKey == 0 {
		return fmt.Errorf("record %s: record has no local key", a)
	}
	if a.Kind == models.ActionDelete && m.ServerKey == "" {
		n, err := t.dropEntriesFor(a.Entity.Collection(), m.LocalKey)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	payload, err := marshalPayload(rec)
	if err != nil {
		return err
	}
	return t.Append(a, m.LocalKey, payload)
}

// PutRecorded writes rec and records CREATE (new record) or UPDATE.
func (t *Tx) PutRecorded(e models.EntityType, rec models.Record) (int64, error) {
	kind := models.ActionUpdate
	if rec.RecordMeta().LocalKey == 0 {
		kind = models.ActionCreate
	}
	key, err := t.Put(e.Collection(), rec)
	if err != nil {
		return 0, err
	}
	if err := t.Record(models.Action{Kind: kind, Entity: e}, rec); err != nil {
		return 0, err
	}
	return key, nil
}

// DeleteRecorded deletes the record at key and records DELETE with the
// record's last stored state. Deleting a missing record records nothing.
func (t *Tx) DeleteRecorded(e models.EntityType, key int64) error {
	c := e.Collection()
	raw, err := t.GetRaw(c, key)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	rec, err := decodeEntity(e, raw)
	if err != nil {
		return err
	}
	if err := t.Delete(c, key); err != nil {
		return err
	}
	return t.Record(models.Delete(e), rec)
}

// RecordMutation durably appends one mutation for rec in its own
// transaction. It returns once the entry has committed.
func (db *DB) RecordMutation(ctx context.Context, a models.Action, rec models.Record) error {
	return db.RunTx(ctx, nil, ReadWrite, func(tx *Tx) error {
		return tx.Record(a, rec)
	})
}

// PutRecorded writes rec and its outbox entry in one transaction.
func (db *DB) PutRecorded(ctx context.Context, e models.EntityType, rec models.Record) (int64, error) {
	var key int64
	err := db.RunTx(ctx, []models.Collection{e.Collection()}, ReadWrite, func(tx *Tx) error {
		var err error
		key, err = tx.PutRecorded(e, rec)
		return err
	})
	return key, err
}

// DeleteRecorded deletes a record and records the mutation in one transaction.
func (db *DB) DeleteRecorded(ctx context.Context, e models.EntityType, key int64) error {
	return db.RunTx(ctx, []models.Collection{e.Collection()}, ReadWrite, func(tx *Tx) error {
		return tx.DeleteRecorded(e, key)
	})
}

// NewRecord returns an empty record of the Go type stored for entity e.
func NewRecord(e models.EntityType) (models.Record, error) {
	switch e {
	case models.EntityProduct:
		return &models.Product{}, nil
	case models.EntityCategory:
		return &models.Category{}, nil
	case models.EntityTransaction:
		return &models.Transaction{}, nil
	case models.EntityContact:
		return &models.Contact{}, nil
	case models.EntityLedger:
		return &models.LedgerEntry{}, nil
	case models.EntityFee:
		return &models.Fee{}, nil
	case models.EntityUser:
		return &models.User{}, nil
	}
	return nil, fmt.Errorf("unknown entity %q", e)
}

func decodeEntity(e models.EntityType, raw json.RawMessage) (models.Record, error) {
	rec, err := NewRecord(e)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e, err)
	}
	return rec, nil
}
