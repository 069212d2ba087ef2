package pos

import (
	"context"
	"testing"
	"time"

	"github.com/marcus/till/internal/models"
)

func TestReportRange(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	tea := addProduct(t, s, &models.Product{Name: "Tea", Price: dec("10"), PurchasePrice: dec("6"), Stock: intp(100)})
	cake := addProduct(t, s, &models.Product{Name: "Cake", Price: dec("20"), PurchasePrice: dec("12")})
	fee := &models.Fee{Name: "Service", Type: models.FeeFixed, Value: dec("2")}
	if err := s.SaveFee(ctx, fee); err != nil {
		t.Fatalf("SaveFee failed: %v", err)
	}
	customer := addContact(t, s, "Budi", "", models.ContactCustomer)
	supplier := addContact(t, s, "Grosir", "", models.ContactSupplier)

	sell := func(day int, items ...models.LineItem) {
		t.Helper()
		s.now = func() time.Time { return time.Date(2024, 3, day, 15, 0, 0, 0, time.UTC) }
		if _, err := s.RecordSale(ctx, Sale{Items: items, Fees: []models.Fee{*fee}, CashPaid: dec("1000")}); err != nil {
			t.Fatalf("RecordSale failed: %v", err)
		}
	}
	sell(1, line(tea, 5, "10", "10"))                           // outside the range
	sell(2, line(tea, 2, "10", "9"), line(cake, 1, "20", "20")) // 38 net, 2 fee
	wholesale := line(tea, 10, "10", "8")
	wholesale.IsWholesale = true
	sell(3, wholesale) // 80 net, 2 fee

	s.now = func() time.Time { return time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC) }
	addLedger(t, s, customer.LocalKey, models.Credit, "50")
	addLedger(t, s, supplier.LocalKey, models.Credit, "30")
	addLedger(t, s, customer.LocalKey, models.Debit, "200")

	r, err := s.Report(ctx, "2024-03-02", "2024-03-03")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(r.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2 (inclusive range)", len(r.Transactions))
	}
	if len(r.Ledgers) != 3 {
		t.Errorf("ledgers = %d, want 3", len(r.Ledgers))
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"revenue", r.Revenue.String(), "118"},
		{"cost of goods", r.CostOfGoods.String(), "84"}, // 12*6 + 12
		{"gross profit", r.GrossProfit.String(), "34"},
		{"fees", r.Fees.String(), "4"},
		{"net profit", r.NetProfit.String(), "30"},
		{"discounts", r.Discounts.String(), "22"},
		{"wholesale", r.WholesaleSales.String(), "80"},
		{"receivable payments", r.ReceivablePayments.String(), "50"},
		{"debt payments", r.DebtPayments.String(), "30"},
		{"cash flow", r.CashFlow.String(), "50"},
		{"average", r.AverageSale.String(), "59"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}

	if len(r.TopProducts) != 2 || r.TopProducts[0].Name != "Tea" || r.TopProducts[0].Quantity != 12 {
		t.Errorf("top products = %+v", r.TopProducts)
	}
	for _, c := range r.Contacts {
		if c.LocalKey == customer.LocalKey && !c.Balance.Equal(dec("150")) {
			t.Errorf("customer balance = %s, want 150", c.Balance)
		}
	}
	// 100 - 17 teas left
	if !r.InventoryCost.Equal(dec("498")) {
		t.Errorf("inventory cost = %s, want 498", r.InventoryCost)
	}
}
