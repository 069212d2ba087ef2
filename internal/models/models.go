package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the ISO-8601 layout used for every stored timestamp.
// Millisecond precision keeps lexicographic order equal to chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now returns the current time in TimeLayout.
func Now() string {
	return FormatTime(time.Now())
}

// timeFormats are the ISO-8601 shapes stored records may carry.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	TimeLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a stored timestamp in any of the accepted shapes.
func ParseTime(s string) (time.Time, error) {
	for _, f := range timeFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// Meta holds the bookkeeping fields every stored entity carries.
type Meta struct {
	LocalKey  int64  `json:"id,omitempty"`
	ServerKey string `json:"serverId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// RecordMeta exposes the embedded Meta so generic store code can read and
// assign keys without knowing the concrete entity type.
func (m *Meta) RecordMeta() *Meta { return m }

// Record is implemented by every entity the local store persists.
type Record interface {
	RecordMeta() *Meta
}

// Touch stamps UpdatedAt (and CreatedAt when unset) with now.
func (m *Meta) Touch(now string) {
	if m.CreatedAt == "" {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Collection names a local store collection.
type Collection string

const (
	Products            Collection = "products"
	Categories          Collection = "categories"
	Transactions        Collection = "transactions"
	Contacts            Collection = "contacts"
	Ledgers             Collection = "ledgers"
	Fees                Collection = "fees"
	Users               Collection = "users"
	Settings            Collection = "settings"
	PendingTransactions Collection = "pending_transactions"
)

// AllCollections lists every record collection in the store (the outbox is
// kept separately and is not a record collection).
var AllCollections = []Collection{
	Products, Categories, Transactions, Contacts, Ledgers, Fees, Users, Settings, PendingTransactions,
}

// BackupCollections are the collections included in a full export/import.
var BackupCollections = []Collection{
	Products, Transactions, Settings, Categories, Fees, Contacts, Ledgers, Users,
}

// SyncedCollections hold the records mirrored to the backend. Settings and
// held carts stay on the device.
var SyncedCollections = []Collection{
	Products, Categories, Transactions, Contacts, Ledgers, Fees, Users,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

// Category groups products.
type Category struct {
	Meta
	Name string `json:"name"`
}

// Discount is a per-product price reduction.
type Discount struct {
	Type  string          `json:"type"` // "fixed" or "percentage"
	Value decimal.Decimal `json:"value"`
}

// WholesalePrice applies Price to quantities in [Min, Max].
type WholesalePrice struct {
	Min   int             `json:"min"`
	Max   int             `json:"max"`
	Price decimal.Decimal `json:"price"`
}

// Variation is a sellable variant of a product with its own price and stock.
type Variation struct {
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	PurchasePrice   decimal.Decimal  `json:"purchasePrice"`
	Stock           *int             `json:"stock"`
	WholesalePrices []WholesalePrice `json:"wholesalePrices,omitempty"`
}

// Product is a catalog item. A nil Stock means unlimited stock.
type Product struct {
	Meta
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	PurchasePrice   decimal.Decimal  `json:"purchasePrice"`
	Stock           *int             `json:"stock"`
	Barcode         string           `json:"barcode,omitempty"`
	Category        string           `json:"category,omitempty"`
	Discount        *Discount        `json:"discount,omitempty"`
	Image           string           `json:"image,omitempty"` // remote URL or embedded data: URI
	WholesalePrices []WholesalePrice `json:"wholesalePrices"`
	Variations      []Variation      `json:"variations"`
}

// ContactType distinguishes customers from suppliers.
type ContactType string

const (
	ContactCustomer ContactType = "customer"
	ContactSupplier ContactType = "supplier"
)

// Contact is a customer or supplier with a ledger.
type Contact struct {
	Meta
	Name    string      `json:"name"`
	Phone   string      `json:"phone"`
	Barcode string      `json:"barcode,omitempty"`
	Address string      `json:"address,omitempty"`
	Notes   string      `json:"notes,omitempty"`
	Type    ContactType `json:"type"`
	Points  int         `json:"points"`

	// Balance is derived from ledger entries for display; never persisted.
	Balance decimal.Decimal `json:"-"`
}

// LedgerType is the direction of a ledger entry.
type LedgerType string

const (
	Debit  LedgerType = "debit"
	Credit LedgerType = "credit"
)

// LedgerEntry is a single debit or credit against a contact.
type LedgerEntry struct {
	Meta
	ContactID   int64           `json:"contactId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        LedgerType      `json:"type"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	DueDate     *string         `json:"dueDate"`
	UserID      *int64          `json:"userId"`
}

// Balance returns the signed sum of entries: debits add, credits subtract.
func Balance(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		switch e.Type {
		case Debit:
			total = total.Add(e.Amount)
		case Credit:
			total = total.Sub(e.Amount)
		}
	}
	return total
}

// FeeType is how a fee's value is applied.
type FeeType string

const (
	FeePercentage FeeType = "percentage"
	FeeFixed      FeeType = "fixed"
)

// Fee is a tax or service charge that can be applied to a sale.
type Fee struct {
	Meta
	Name      string          `json:"name"`
	Type      FeeType         `json:"type"`
	Value     decimal.Decimal `json:"value"`
	IsDefault bool            `json:"isDefault"`
	IsTax     bool            `json:"isTax"`
}

// Role is a cashier account role.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// User is a cashier account on this device.
type User struct {
	Meta
	Name     string `json:"name"`
	PIN      string `json:"pin,omitempty"`
	Role     Role   `json:"role"`
	OwnerUID string `json:"ownerUid,omitempty"`
}

// LineItem is one product line in a sale or held cart.
type LineItem struct {
	ProductID          int64           `json:"productId"`
	Name               string          `json:"name"`
	Quantity           int             `json:"quantity"`
	BasePrice          decimal.Decimal `json:"basePrice"`
	EffectivePrice     decimal.Decimal `json:"effectivePrice"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	VariationIndex     *int            `json:"variationIndex,omitempty"`
	IsWholesale        bool            `json:"isWholesale,omitempty"`

	// Product points back at the cart's in-memory product; never persisted.
	Product *Product `json:"-"`
}

// AppliedFee is a fee as charged on a specific sale.
type AppliedFee struct {
	FeeID     int64           `json:"feeId"`
	Name      string          `json:"name"`
	Type      FeeType         `json:"type"`
	Value     decimal.Decimal `json:"value"`
	IsDefault bool            `json:"isDefault"`
	IsTax     bool            `json:"isTax"`
	Amount    decimal.Decimal `json:"amount"`
}

// Transaction is a completed sale.
type Transaction struct {
	Meta
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	Total         decimal.Decimal `json:"total"`
	CashPaid      decimal.Decimal `json:"cashPaid"`
	Change        decimal.Decimal `json:"change"`
	PaymentMethod string          `json:"paymentMethod"`
	UserID        *int64          `json:"userId"`
	UserName      string          `json:"userName,omitempty"`
	CustomerID    *int64          `json:"customerId"`
	CustomerName  string          `json:"customerName,omitempty"`
	Date          string          `json:"date"`
	Items         []LineItem      `json:"items"`
	Fees          []AppliedFee    `json:"fees"`
}

// PendingTransaction is a held cart, resumed later. It never syncs.
type PendingTransaction struct {
	Meta
	Items        []LineItem   `json:"items"`
	Fees         []AppliedFee `json:"fees"`
	CustomerID   *int64       `json:"customerId"`
	CustomerName string       `json:"customerName,omitempty"`
	Timestamp    string       `json:"timestamp"`
}

// Setting is a key/value pair in the settings collection.
type Setting struct {
	Meta
	Key   string `json:"key"`
	Value any    `json:"value"`
}
