package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/sanitize"
)

// LastExportKey is the setting updated after every successful export.
const LastExportKey = "lastExportDate"

// PutSetting stores value under key. Settings stay on this device.
func (s *Service) PutSetting(ctx context.Context, key string, value any) error {
	if key == "" {
		return invalid("key", "setting key is required")
	}
	return s.store.RunTx(ctx, cols(models.Settings), db.ReadWrite, func(tx *db.Tx) error {
		var found []models.Setting
		if err := tx.GetAllByIndex(models.Settings, "key", db.Only(key), &found); err != nil {
			return err
		}
		st := &models.Setting{Key: key, Value: value}
		if len(found) > 0 {
			st.Meta = found[0].Meta
		}
		st.Touch(s.stamp())
		_, err := tx.Put(models.Settings, st)
		return err
	})
}

// Setting returns the setting stored under key, or db.ErrNotFound.
func (s *Service) Setting(ctx context.Context, key string) (*models.Setting, error) {
	var found []models.Setting
	if err := s.store.GetAllByIndex(ctx, models.Settings, "key", db.Only(key), &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("setting %q: %w", key, db.ErrNotFound)
	}
	return &found[0], nil
}

// newRecord returns an empty record of the type stored in c.
func newRecord(c models.Collection) (models.Record, error) {
	switch c {
	case models.Settings:
		return &models.Setting{}, nil
	case models.PendingTransactions:
		return &models.PendingTransaction{}, nil
	}
	e, ok := models.EntityFor(c)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return db.NewRecord(e)
}

// Export writes a backup of every backup collection to w as one JSON
// object keyed by collection name, plus exportDate, then records the export
// time in the LastExportKey setting.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	doc := make(map[string]any, len(models.BackupCollections)+1)
	err := s.store.RunTx(ctx, models.BackupCollections, db.ReadOnly, func(tx *db.Tx) error {
		for _, c := range models.BackupCollections {
			var raws []json.RawMessage
			if err := tx.GetAll(c, &raws); err != nil {
				return err
			}
			out := make([]any, 0, len(raws))
			for _, raw := range raws {
				rec, err := newRecord(c)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, rec); err != nil {
					return fmt.Errorf("decode %s: %w", c, err)
				}
				out = append(out, sanitize.Record(rec, sanitize.ForExport))
			}
			doc[string(c)] = out
		}
		return nil
	})
	if err != nil {
		return err
	}

	exported := s.stamp()
	doc["exportDate"] = exported
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return s.PutSetting(ctx, LastExportKey, exported)
}

// ImportSummary counts the records restored per collection.
type ImportSummary map[models.Collection]int

// Import restores a backup read from r. Only collections present in the
// backup are replaced, keeping their record keys. Their queued outbox
// entries are dropped: a restored collection starts from the backup's state,
// not from queued edits. Entries of untouched collections stay queued.
// The restore is all-or-nothing.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, invalid("file", "not a backup file: %v", err)
	}

	records := make(map[models.Collection][]models.Record)
	for _, c := range models.BackupCollections {
		raw, ok := doc[string(c)]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, invalid(string(c), "expected a list: %v", err)
		}
		recs := make([]models.Record, 0, len(items))
		for i, item := range items {
			rec, err := newRecord(c)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(item, rec); err != nil {
				return nil, invalid(string(c), "entry %d: %v", i, err)
			}
			recs = append(recs, rec)
		}
		records[c] = recs
	}
	if len(records) == 0 {
		return nil, invalid("file", "backup contains no known collections")
	}

	summary := make(ImportSummary, len(records))
	err := s.store.RunTx(ctx, models.BackupCollections, db.ReadWrite, func(tx *db.Tx) error {
		replaced := make([]models.Collection, 0, len(records))
		for _, c := range models.BackupCollections {
			recs, ok := records[c]
			if !ok {
				continue
			}
			if err := tx.Clear(c); err != nil {
				return err
			}
			for _, rec := range recs {
				if _, err := tx.Put(c, rec); err != nil {
					return err
				}
			}
			summary[c] = len(recs)
			replaced = append(replaced, c)
		}
		return tx.ClearOutboxFor(replaced...)
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ClearAll wipes every collection and the outbox.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}
