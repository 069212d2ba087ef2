package pos

import (
	"cmp"
	"context"
	"slices"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

// topProductCount is how many best sellers a report lists.
const topProductCount = 5

// ProductSales is one best-seller line of a report.
type ProductSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Report summarizes sales and ledger activity between two dates.
type Report struct {
	From string `json:"from"`
	To   string `json:"to"`

	Transactions []models.Transaction `json:"transactions"`
	Ledgers      []models.LedgerEntry `json:"ledgers"`

	Revenue            decimal.Decimal `json:"revenue"` // sales net of discounts, before fees
	CostOfGoods        decimal.Decimal `json:"costOfGoods"`
	GrossProfit        decimal.Decimal `json:"grossProfit"`
	Fees               decimal.Decimal `json:"fees"`
	NetProfit          decimal.Decimal `json:"netProfit"`
	Discounts          decimal.Decimal `json:"discounts"`
	WholesaleSales     decimal.Decimal `json:"wholesaleSales"`
	ReceivablePayments decimal.Decimal `json:"receivablePayments"`
	DebtPayments       decimal.Decimal `json:"debtPayments"`
	CashFlow           decimal.Decimal `json:"cashFlow"`
	AverageSale        decimal.Decimal `json:"averageSale"`
	InventoryCost      decimal.Decimal `json:"inventoryCost"`
	InventoryValue     decimal.Decimal `json:"inventoryValue"`

	TopProducts []ProductSales   `json:"topProducts"`
	Contacts    []models.Contact `json:"contacts"`
}

// Report builds the report for [from, to]. Date-only bounds cover whole days.
func (s *Service) Report(ctx context.Context, from, to string) (*Report, error) {
	r := &Report{From: from, To: to}
	var (
		products []models.Product
		contacts []models.Contact
		all      []models.LedgerEntry
	)
	span := db.DateRange(from, to)
	err := s.store.RunTx(ctx, cols(models.Transactions, models.Ledgers, models.Products, models.Contacts), db.ReadOnly, func(tx *db.Tx) error {
		if err := tx.GetAllByIndex(models.Transactions, "date", span, &r.Transactions); err != nil {
			return err
		}
		if err := tx.GetAllByIndex(models.Ledgers, "date", span, &r.Ledgers); err != nil {
			return err
		}
		if err := tx.GetAll(models.Products, &products); err != nil {
			return err
		}
		if err := tx.GetAll(models.Contacts, &contacts); err != nil {
			return err
		}
		return tx.GetAll(models.Ledgers, &all)
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[int64]*models.Product, len(products))
	for i := range products {
		byKey[products[i].LocalKey] = &products[i]
	}
	r.summarizeSales(byKey)
	r.summarizeLedgers(contacts)
	r.summarizeInventory(products)

	byContact := make(map[int64][]models.LedgerEntry)
	for _, e := range all {
		byContact[e.ContactID] = append(byContact[e.ContactID], e)
	}
	for i := range contacts {
		contacts[i].Balance = models.Balance(byContact[contacts[i].LocalKey])
	}
	r.Contacts = contacts
	return r, nil
}

func (r *Report) summarizeSales(products map[int64]*models.Product) {
	sold := make(map[string]*ProductSales)
	for i := range r.Transactions {
		t := &r.Transactions[i]
		fees := feesTotal(t)
		r.Revenue = r.Revenue.Add(t.Total.Sub(fees))
		r.Fees = r.Fees.Add(fees)
		r.Discounts = r.Discounts.Add(t.TotalDiscount)

		for _, it := range t.Items {
			q := decimal.NewFromInt(int64(it.Quantity))
			if p, ok := products[it.ProductID]; ok {
				r.CostOfGoods = r.CostOfGoods.Add(p.PurchasePrice.Mul(q))
			}
			line := it.EffectivePrice.Mul(q)
			if it.IsWholesale {
				r.WholesaleSales = r.WholesaleSales.Add(line)
			}
			ps, ok := sold[it.Name]
			if !ok {
				ps = &ProductSales{Name: it.Name}
				sold[it.Name] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(line)
		}
	}
	r.GrossProfit = r.Revenue.Sub(r.CostOfGoods)
	r.NetProfit = r.GrossProfit.Sub(r.Fees)
	if n := len(r.Transactions); n > 0 {
		r.AverageSale = r.Revenue.Div(decimal.NewFromInt(int64(n))).Round(2)
	}

	for _, ps := range sold {
		r.TopProducts = append(r.TopProducts, *ps)
	}
	slices.SortFunc(r.TopProducts, func(a, b ProductSales) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(r.TopProducts) > topProductCount {
		r.TopProducts = r.TopProducts[:topProductCount]
	}
}

// summarizeLedgers counts credits in the range as payments: received from
// customers, paid out to suppliers.
func (r *Report) summarizeLedgers(contacts []models.Contact) {
	types := make(map[int64]models.ContactType, len(contacts))
	for _, c := range contacts {
		types[c.LocalKey] = c.Type
	}
	for _, e := range r.Ledgers {
		if e.Type != models.Credit {
			continue
		}
		switch types[e.ContactID] {
		case models.ContactCustomer:
			r.ReceivablePayments = r.ReceivablePayments.Add(e.Amount)
		case models.ContactSupplier:
			r.DebtPayments = r.DebtPayments.Add(e.Amount)
		}
	}
	r.CashFlow = r.NetProfit.Add(r.ReceivablePayments).Sub(r.DebtPayments)
}

func (r *Report) summarizeInventory(products []models.Product) {
	add := func(price, purchase decimal.Decimal, stock *int) {
		if stock == nil {
			return
		}
		n := decimal.NewFromInt(int64(*stock))
		r.InventoryCost = r.InventoryCost.Add(purchase.Mul(n))
		r.InventoryValue = r.InventoryValue.Add(price.Mul(n))
	}
	for _, p := range products {
		if len(p.Variations) == 0 {
			add(p.Price, p.PurchasePrice, p.Stock)
			continue
		}
		for _, v := range p.Variations {
			add(v.Price, v.PurchasePrice, v.Stock)
		}
	}
}
