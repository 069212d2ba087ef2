package pos

import (
	"context"
	"slices"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/sanitize"
)

// Hold parks a cart for later. Held carts stay on this device.
func (s *Service) Hold(ctx context.Context, items []models.LineItem, fees []models.AppliedFee, customer *models.Contact) (*models.PendingTransaction, error) {
	if len(items) == 0 {
		return nil, invalid("items", "cart is empty")
	}
	p := &models.PendingTransaction{
		Items:     sanitize.LineItems(items),
		Fees:      slices.Clone(fees),
		Timestamp: s.stamp(),
	}
	if customer != nil {
		id := customer.LocalKey
		p.CustomerID = &id
		p.CustomerName = customer.Name
	}
	p.Touch(p.Timestamp)
	if _, err := s.store.Put(ctx, models.PendingTransactions, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Held lists held carts, oldest first.
func (s *Service) Held(ctx context.Context) ([]models.PendingTransaction, error) {
	var out []models.PendingTransaction
	err := s.store.GetAllByIndex(ctx, models.PendingTransactions, "timestamp", db.Range{}, &out)
	return out, err
}

// Resume returns a held cart and removes it from the held list.
func (s *Service) Resume(ctx context.Context, key int64) (*models.PendingTransaction, error) {
	var p models.PendingTransaction
	err := s.store.RunTx(ctx, cols(models.PendingTransactions), db.ReadWrite, func(tx *db.Tx) error {
		if err := tx.Get(models.PendingTransactions, key, &p); err != nil {
			return err
		}
		return tx.Delete(models.PendingTransactions, key)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DiscardHeld deletes a held cart without resuming it.
func (s *Service) DiscardHeld(ctx context.Context, key int64) error {
	return s.store.Delete(ctx, models.PendingTransactions, key)
}
