package pos

import (
	"context"
	"strings"
	"time"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
)

// DueWindow is how far ahead DueSoon looks for unpaid debits.
const DueWindow = 3 * 24 * time.Hour

// SaveContact validates and stores a customer or supplier. Name and phone
// together must be unique (case-insensitive name), and so must a non-empty
// barcode. Editing keeps the stored points.
func (s *Service) SaveContact(ctx context.Context, c *models.Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Barcode = strings.TrimSpace(c.Barcode)
	if c.Name == "" {
		return invalid("name", "contact name is required")
	}
	if c.Type == "" {
		c.Type = models.ContactCustomer
	}
	if c.Type != models.ContactCustomer && c.Type != models.ContactSupplier {
		return invalid("type", "unknown contact type %q", c.Type)
	}

	return s.store.RunTx(ctx, cols(models.Contacts), db.ReadWrite, func(tx *db.Tx) error {
		var all []models.Contact
		if err := tx.GetAll(models.Contacts, &all); err != nil {
			return err
		}
		for _, o := range all {
			if o.LocalKey == c.LocalKey {
				c.Points = o.Points
				continue
			}
			if strings.EqualFold(o.Name, c.Name) && o.Phone == c.Phone {
				return invalid("name", "a contact named %q with this phone already exists", o.Name)
			}
			if c.Barcode != "" && o.Barcode == c.Barcode {
				return invalid("barcode", "barcode %s already belongs to %q", c.Barcode, o.Name)
			}
		}
		c.Touch(s.stamp())
		_, err := tx.PutRecorded(models.EntityContact, c)
		return err
	})
}

// DeleteContact deletes a contact together with its ledger entries.
func (s *Service) DeleteContact(ctx context.Context, key int64) error {
	return s.store.RunTx(ctx, cols(models.Contacts, models.Ledgers), db.ReadWrite, func(tx *db.Tx) error {
		var entries []models.LedgerEntry
		if err := tx.GetAllByIndex(models.Ledgers, "contactId", db.Only(key), &entries); err != nil {
			return err
		}
		for _, e := range entries {
			if err := tx.DeleteRecorded(models.EntityLedger, e.LocalKey); err != nil {
				return err
			}
		}
		return tx.DeleteRecorded(models.EntityContact, key)
	})
}

// ResetPoints zeroes a contact's loyalty points.
func (s *Service) ResetPoints(ctx context.Context, key int64) error {
	return s.store.RunTx(ctx, cols(models.Contacts), db.ReadWrite, func(tx *db.Tx) error {
		var c models.Contact
		if err := tx.Get(models.Contacts, key, &c); err != nil {
			return err
		}
		c.Points = 0
		c.Touch(s.stamp())
		_, err := tx.PutRecorded(models.EntityContact, &c)
		return err
	})
}

// Contact loads one contact with its balance.
func (s *Service) Contact(ctx context.Context, key int64) (*models.Contact, error) {
	var c models.Contact
	err := s.store.RunTx(ctx, cols(models.Contacts, models.Ledgers), db.ReadOnly, func(tx *db.Tx) error {
		if err := tx.Get(models.Contacts, key, &c); err != nil {
			return err
		}
		var entries []models.LedgerEntry
		if err := tx.GetAllByIndex(models.Ledgers, "contactId", db.Only(key), &entries); err != nil {
			return err
		}
		c.Balance = models.Balance(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Contacts lists contacts of type t (all when empty) with their balances.
func (s *Service) Contacts(ctx context.Context, t models.ContactType) ([]models.Contact, error) {
	var out []models.Contact
	err := s.store.RunTx(ctx, cols(models.Contacts, models.Ledgers), db.ReadOnly, func(tx *db.Tx) error {
		var err error
		if t == "" {
			err = tx.GetAll(models.Contacts, &out)
		} else {
			err = tx.GetAllByIndex(models.Contacts, "type", db.Only(string(t)), &out)
		}
		if err != nil {
			return err
		}
		var entries []models.LedgerEntry
		if err := tx.GetAll(models.Ledgers, &entries); err != nil {
			return err
		}
		byContact := make(map[int64][]models.LedgerEntry)
		for _, e := range entries {
			byContact[e.ContactID] = append(byContact[e.ContactID], e)
		}
		for i := range out {
			out[i].Balance = models.Balance(byContact[out[i].LocalKey])
		}
		return nil
	})
	return out, err
}

// SaveLedgerEntry validates and stores a debit or credit. Due dates only
// apply to debits; an edit keeps the original entry date.
func (s *Service) SaveLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	e.Description = strings.TrimSpace(e.Description)
	if !e.Amount.IsPositive() {
		return invalid("amount", "amount must be greater than zero")
	}
	if e.Description == "" {
		return invalid("description", "description is required")
	}
	if e.Type != models.Debit && e.Type != models.Credit {
		return invalid("type", "ledger type must be debit or credit")
	}
	if e.Type != models.Debit || (e.DueDate != nil && *e.DueDate == "") {
		e.DueDate = nil
	}

	now := s.stamp()
	return s.store.RunTx(ctx, cols(models.Contacts, models.Ledgers), db.ReadWrite, func(tx *db.Tx) error {
		var c models.Contact
		if err := tx.Get(models.Contacts, e.ContactID, &c); err != nil {
			return err
		}
		if e.LocalKey != 0 {
			var old models.LedgerEntry
			if err := tx.Get(models.Ledgers, e.LocalKey, &old); err != nil {
				return err
			}
			e.Date = old.Date
			e.CreatedAt = old.CreatedAt
		}
		if e.Date == "" {
			e.Date = now
		}
		e.Touch(now)
		_, err := tx.PutRecorded(models.EntityLedger, e)
		return err
	})
}

// SetDueDate changes or clears (empty due) the due date of a debit.
func (s *Service) SetDueDate(ctx context.Context, key int64, due string) error {
	return s.store.RunTx(ctx, cols(models.Ledgers), db.ReadWrite, func(tx *db.Tx) error {
		var e models.LedgerEntry
		if err := tx.Get(models.Ledgers, key, &e); err != nil {
			return err
		}
		if e.Type != models.Debit {
			return invalid("dueDate", "only debits have a due date")
		}
		if due == "" {
			e.DueDate = nil
		} else {
			e.DueDate = &due
		}
		e.Touch(s.stamp())
		_, err := tx.PutRecorded(models.EntityLedger, &e)
		return err
	})
}

// DeleteLedgerEntry deletes one ledger entry.
func (s *Service) DeleteLedgerEntry(ctx context.Context, key int64) error {
	return s.store.DeleteRecorded(ctx, models.EntityLedger, key)
}

// Ledger returns a contact's entries, oldest first.
func (s *Service) Ledger(ctx context.Context, contactID int64) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	err := s.store.GetAllByIndex(ctx, models.Ledgers, "contactId", db.Only(contactID), &out)
	return out, err
}

// DueSoon returns debits that are overdue or due within DueWindow.
func (s *Service) DueSoon(ctx context.Context) ([]models.LedgerEntry, error) {
	var all []models.LedgerEntry
	if err := s.store.GetAll(ctx, models.Ledgers, &all); err != nil {
		return nil, err
	}
	limit := models.FormatTime(s.now().Add(DueWindow))
	var out []models.LedgerEntry
	for _, e := range all {
		if e.Type == models.Debit && e.DueDate != nil && *e.DueDate <= limit {
			out = append(out, e)
		}
	}
	return out, nil
}
