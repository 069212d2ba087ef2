package pos

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

// PaymentCash is the payment method that requires cash to cover the total.
const PaymentCash = "cash"

// Sale is a checkout request.
type Sale struct {
	Items         []models.LineItem
	Fees          []models.Fee
	CashPaid      decimal.Decimal
	PaymentMethod string
	User          *models.User
	Customer      *models.Contact
}

// totals fills the money fields of t from its items, fees and cash paid.
// Percentage fees are recharged on the discounted subtotal.
func totals(t *models.Transaction) {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, it := range t.Items {
		q := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(it.BasePrice.Mul(q))
		discount = discount.Add(it.BasePrice.Sub(it.EffectivePrice).Mul(q))
	}
	net := subtotal.Sub(discount)
	fees := decimal.Zero
	for i, f := range t.Fees {
		if f.Type == models.FeePercentage {
			t.Fees[i].Amount = net.Mul(f.Value).Div(decimal.NewFromInt(100)).Round(0)
		}
		fees = fees.Add(t.Fees[i].Amount)
	}
	t.Subtotal = subtotal
	t.TotalDiscount = discount
	t.Total = net.Add(fees)
	t.Change = t.CashPaid.Sub(t.Total)
}

// feesTotal sums the fee amounts charged on t.
func feesTotal(t *models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, f := range t.Fees {
		sum = sum.Add(f.Amount)
	}
	return sum
}

// rollUpStock sets a product's stock to the sum of its variations', or nil
// when any variation is unlimited.
func rollUpStock(p *models.Product) {
	if len(p.Variations) == 0 {
		return
	}
	total := 0
	for _, v := range p.Variations {
		if v.Stock == nil {
			p.Stock = nil
			return
		}
		total += *v.Stock
	}
	p.Stock = &total
}

// moveStock adds delta units to the stock a line item draws from and
// reports whether anything changed. Unlimited stock is left alone. It fails
// when a sale would take more than is left.
func moveStock(p *models.Product, variation *int, delta int) (bool, error) {
	if variation != nil {
		i := *variation
		if i < 0 || i >= len(p.Variations) {
			return false, invalid("items", "%q has no variation %d", p.Name, i)
		}
		v := &p.Variations[i]
		if v.Stock == nil {
			return false, nil
		}
		if *v.Stock+delta < 0 {
			return false, invalid("items", "only %d of %q %s left", *v.Stock, p.Name, v.Name)
		}
		n := *v.Stock + delta
		v.Stock = &n
		rollUpStock(p)
		return true, nil
	}
	if p.Stock == nil {
		return false, nil
	}
	if *p.Stock+delta < 0 {
		return false, invalid("items", "only %d of %q left", *p.Stock, p.Name)
	}
	n := *p.Stock + delta
	p.Stock = &n
	return true, nil
}

// RecordSale completes a checkout: it stores the transaction and decrements
// stock for every line, recording UPDATE_PRODUCT per touched product and
// CREATE_TRANSACTION in one store transaction.
func (s *Service) RecordSale(ctx context.Context, sale Sale) (*models.Transaction, error) {
	if len(sale.Items) == 0 {
		return nil, invalid("items", "cart is empty")
	}
	for _, it := range sale.Items {
		if it.Quantity <= 0 {
			return nil, invalid("items", "quantity of %q must be positive", it.Name)
		}
	}

	now := s.stamp()
	t := &models.Transaction{
		CashPaid:      sale.CashPaid,
		PaymentMethod: sale.PaymentMethod,
		Date:          now,
		Items:         slices.Clone(sale.Items),
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = PaymentCash
	}
	for i, it := range t.Items {
		if it.EffectivePrice.IsZero() && it.DiscountPercentage.IsZero() {
			t.Items[i].EffectivePrice = it.BasePrice
		}
	}
	for _, f := range sale.Fees {
		t.Fees = append(t.Fees, Apply(f, decimal.Zero))
	}
	if sale.User != nil {
		id := sale.User.LocalKey
		t.UserID = &id
		t.UserName = sale.User.Name
	}
	if sale.Customer != nil {
		id := sale.Customer.LocalKey
		t.CustomerID = &id
		t.CustomerName = sale.Customer.Name
	}
	totals(t)
	if t.PaymentMethod == PaymentCash {
		if t.CashPaid.LessThan(t.Total) {
			return nil, invalid("cashPaid", "cash paid %s is less than the total %s", t.CashPaid, t.Total)
		}
	} else {
		t.CashPaid = t.Total
		t.Change = decimal.Zero
	}
	t.Touch(now)

	err := s.store.RunTx(ctx, cols(models.Products, models.Transactions), db.ReadWrite, func(tx *db.Tx) error {
		products := make(map[int64]*models.Product)
		var touched []int64
		for _, it := range t.Items {
			p, ok := products[it.ProductID]
			if !ok {
				p = &models.Product{}
				if err := tx.Get(models.Products, it.ProductID, p); err != nil {
					return fmt.Errorf("sell %q: %w", it.Name, err)
				}
				products[it.ProductID] = p
			}
			moved, err := moveStock(p, it.VariationIndex, -it.Quantity)
			if err != nil {
				return err
			}
			if moved && !slices.Contains(touched, it.ProductID) {
				touched = append(touched, it.ProductID)
			}
		}
		for _, key := range touched {
			p := products[key]
			p.Touch(now)
			if _, err := tx.PutRecorded(models.EntityProduct, p); err != nil {
				return err
			}
		}
		_, err := tx.PutRecorded(models.EntityTransaction, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReturnItem takes line index back from a sale and restocks it. A sale left
// without items is deleted; otherwise its totals are recomputed.
func (s *Service) ReturnItem(ctx context.Context, txKey int64, index int) (*models.Transaction, error) {
	var t models.Transaction
	now := s.stamp()
	err := s.store.RunTx(ctx, cols(models.Products, models.Transactions), db.ReadWrite, func(tx *db.Tx) error {
		if err := tx.Get(models.Transactions, txKey, &t); err != nil {
			return err
		}
		if index < 0 || index >= len(t.Items) {
			return invalid("item", "sale has no item %d", index)
		}
		item := t.Items[index]
		t.Items = append(t.Items[:index], t.Items[index+1:]...)

		if len(t.Items) == 0 {
			if err := tx.DeleteRecorded(models.EntityTransaction, txKey); err != nil {
				return err
			}
		} else {
			totals(&t)
			t.Touch(now)
			if _, err := tx.PutRecorded(models.EntityTransaction, &t); err != nil {
				return err
			}
		}

		var p models.Product
		if err := tx.Get(models.Products, item.ProductID, &p); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil
			}
			return err
		}
		moved, err := moveStock(&p, item.VariationIndex, item.Quantity)
		if err != nil || !moved {
			return err
		}
		p.Touch(now)
		_, err = tx.PutRecorded(models.EntityProduct, &p)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(t.Items) == 0 {
		return nil, nil
	}
	return &t, nil
}

// Transactions lists sales dated within [from, to]; empty bounds are open.
func (s *Service) Transactions(ctx context.Context, from, to string) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.store.GetAllByIndex(ctx, models.Transactions, "date", db.DateRange(from, to), &out)
	return out, err
}
