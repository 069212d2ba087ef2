// Package sanitize strips local-only state from entities before they leave
// the local store, either as outbox payloads or as backup exports.
//
// Every function here is pure and total: nil input yields a zero value and
// nothing panics. Each returns a deep copy so callers can marshal the result
// without sharing slices with live in-memory records.
package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marcus/till/internal/models"
)

// Target selects which local-only fields are dropped.
type Target int

const (
	// ForOutbox is the remote backend view: no embedded images, no secrets.
	ForOutbox Target = iota
	// ForExport is the backup view: keeps embedded images and PINs so a
	// restore reproduces the device state.
	ForExport
)

// embedded reports whether an image reference is inline data rather than a URL.
func embedded(image string) bool {
	return strings.HasPrefix(image, "data:")
}

func meta(m models.Meta) models.Meta {
	return models.Meta{
		LocalKey:  m.LocalKey,
		ServerKey: m.ServerKey,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Product sanitizes a product.
func Product(p *models.Product, t Target) models.Product {
	if p == nil {
		return models.Product{}
	}
	out := models.Product{
		Meta:            meta(p.Meta),
		Name:            p.Name,
		Price:           p.Price,
		PurchasePrice:   p.PurchasePrice,
		Stock:           cloneInt(p.Stock),
		Barcode:         p.Barcode,
		Category:        p.Category,
		Image:           p.Image,
		WholesalePrices: wholesale(p.WholesalePrices),
		Variations:      make([]models.Variation, 0, len(p.Variations)),
	}
	if p.Discount != nil {
		d := *p.Discount
		out.Discount = &d
	}
	if t == ForOutbox && embedded(out.Image) {
		out.Image = ""
	}
	for _, v := range p.Variations {
		out.Variations = append(out.Variations, models.Variation{
			Name:            v.Name,
			Price:           v.Price,
			PurchasePrice:   v.PurchasePrice,
			Stock:           cloneInt(v.Stock),
			WholesalePrices: wholesale(v.WholesalePrices),
		})
	}
	return out
}

// Category sanitizes a category.
func Category(c *models.Category, _ Target) models.Category {
	if c == nil {
		return models.Category{}
	}
	return models.Category{Meta: meta(c.Meta), Name: c.Name}
}

// Contact sanitizes a contact, dropping the derived balance.
func Contact(c *models.Contact, _ Target) models.Contact {
	if c == nil {
		return models.Contact{}
	}
	return models.Contact{
		Meta:    meta(c.Meta),
		Name:    c.Name,
		Phone:   c.Phone,
		Barcode: c.Barcode,
		Address: c.Address,
		Notes:   c.Notes,
		Type:    c.Type,
		Points:  c.Points,
	}
}

// Ledger sanitizes a ledger entry.
func Ledger(l *models.LedgerEntry, _ Target) models.LedgerEntry {
	if l == nil {
		return models.LedgerEntry{}
	}
	return models.LedgerEntry{
		Meta:        meta(l.Meta),
		ContactID:   l.ContactID,
		Amount:      l.Amount,
		Type:        l.Type,
		Description: l.Description,
		Date:        l.Date,
		DueDate:     cloneString(l.DueDate),
		UserID:      cloneInt64(l.UserID),
	}
}

// Fee sanitizes a fee.
func Fee(f *models.Fee, _ Target) models.Fee {
	if f == nil {
		return models.Fee{}
	}
	return models.Fee{
		Meta:      meta(f.Meta),
		Name:      f.Name,
		Type:      f.Type,
		Value:     f.Value,
		IsDefault: f.IsDefault,
		IsTax:     f.IsTax,
	}
}

// User sanitizes a user. PINs never leave the device through the outbox.
func User(u *models.User, t Target) models.User {
	if u == nil {
		return models.User{}
	}
	out := models.User{
		Meta:     meta(u.Meta),
		Name:     u.Name,
		Role:     u.Role,
		OwnerUID: u.OwnerUID,
	}
	if t == ForExport {
		out.PIN = u.PIN
	}
	return out
}

// Transaction rebuilds a sale field by field, cutting the cart's product
// back-references out of every line item.
func Transaction(tx *models.Transaction, _ Target) models.Transaction {
	if tx == nil {
		return models.Transaction{}
	}
	return models.Transaction{
		Meta:          meta(tx.Meta),
		Subtotal:      tx.Subtotal,
		TotalDiscount: tx.TotalDiscount,
		Total:         tx.Total,
		CashPaid:      tx.CashPaid,
		Change:        tx.Change,
		PaymentMethod: tx.PaymentMethod,
		UserID:        cloneInt64(tx.UserID),
		UserName:      tx.UserName,
		CustomerID:    cloneInt64(tx.CustomerID),
		CustomerName:  tx.CustomerName,
		Date:          tx.Date,
		Items:         LineItems(tx.Items),
		Fees:          AppliedFees(tx.Fees),
	}
}

// LineItems copies cart lines without their product back-references.
func LineItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.LineItem{
			ProductID:          it.ProductID,
			Name:               it.Name,
			Quantity:           it.Quantity,
			BasePrice:          it.BasePrice,
			EffectivePrice:     it.EffectivePrice,
			DiscountPercentage: it.DiscountPercentage,
			VariationIndex:     cloneInt(it.VariationIndex),
			IsWholesale:        it.IsWholesale,
		})
	}
	return out
}

// AppliedFees copies the fees charged on a sale.
func AppliedFees(fees []models.AppliedFee) []models.AppliedFee {
	out := make([]models.AppliedFee, len(fees))
	copy(out, fees)
	return out
}

// Setting sanitizes a settings row.
func Setting(s *models.Setting, _ Target) models.Setting {
	if s == nil {
		return models.Setting{}
	}
	return models.Setting{Meta: meta(s.Meta), Key: s.Key, Value: s.Value}
}

// Pending sanitizes a held cart.
func Pending(p *models.PendingTransaction, _ Target) models.PendingTransaction {
	if p == nil {
		return models.PendingTransaction{}
	}
	return models.PendingTransaction{
		Meta:         meta(p.Meta),
		Items:        LineItems(p.Items),
		Fees:         AppliedFees(p.Fees),
		CustomerID:   cloneInt64(p.CustomerID),
		CustomerName: p.CustomerName,
		Timestamp:    p.Timestamp,
	}
}

// Record dispatches to the sanitizer for rec's concrete type. Unknown types
// reduce to their bookkeeping fields so nothing unexpected leaks out.
func Record(rec models.Record, t Target) any {
	switch v := rec.(type) {
	case *models.Product:
		return Product(v, t)
	case *models.Category:
		return Category(v, t)
	case *models.Contact:
		return Contact(v, t)
	case *models.LedgerEntry:
		return Ledger(v, t)
	case *models.Fee:
		return Fee(v, t)
	case *models.User:
		return User(v, t)
	case *models.Transaction:
		return Transaction(v, t)
	case *models.Setting:
		return Setting(v, t)
	case *models.PendingTransaction:
		return Pending(v, t)
	case nil:
		return models.Meta{}
	default:
		if m := rec.RecordMeta(); m != nil {
			return meta(*m)
		}
		return models.Meta{}
	}
}

func wholesale(in []models.WholesalePrice) []models.WholesalePrice {
	out := make([]models.WholesalePrice, len(in))
	copy(out, in)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// localOnly names, per collection, the JSON fields ForOutbox drops.
var localOnly = map[models.Collection][]string{
	models.Users:    {"pin"},
	models.Products: {"image"},
}

// Restore carries the local-only fields of local over to remote, a payload
// that came back from the backend and therefore never had them. A field the
// remote copy sets itself wins, except an embedded image, which only ever
// exists locally. Collections without local-only fields return remote as is.
func Restore(c models.Collection, remote, local []byte) ([]byte, error) {
	fields := localOnly[c]
	if len(fields) == 0 || len(local) == 0 {
		return remote, nil
	}
	var lm map[string]json.RawMessage
	if err := json.Unmarshal(local, &lm); err != nil {
		return nil, fmt.Errorf("decode local %s: %w", c, err)
	}
	var rm map[string]json.RawMessage
	if err := json.Unmarshal(remote, &rm); err != nil {
		return nil, fmt.Errorf("decode remote %s: %w", c, err)
	}
	changed := false
	for _, f := range fields {
		lv, ok := lm[f]
		if !ok || !keep(f, lv) || present(rm[f]) {
			continue
		}
		rm[f] = lv
		changed = true
	}
	if !changed {
		return remote, nil
	}
	return json.Marshal(rm)
}

// keep reports whether a local field value is one the outbox would have
// stripped: an embedded image, or any PIN.
func keep(field string, v json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return false
	}
	if field == "image" {
		return embedded(s)
	}
	return true
}

func present(v json.RawMessage) bool {
	if len(v) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s != ""
	}
	return string(v) != "null"
}
