package cmd

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/pos"
	"github.com/shopspring/decimal"
)

func TestParseItemSpec(t *testing.T) {
	tests := []struct {
		in        string
		key       int64
		barcode   string
		variation int // -1 for none
		qty       int
	}{
		{"3", 3, "", -1, 1},
		{"3:2", 3, "", -1, 2},
		{"7/1", 7, "", 1, 1},
		{"7/0:4", 7, "", 0, 4},
		{"@8991234567890", 0, "8991234567890", -1, 1},
		{"@899:12", 0, "899", -1, 12},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			spec, err := parseItemSpec(tt.in)
			if err != nil {
				t.Fatalf("parseItemSpec: %v", err)
			}
			if spec.key != tt.key || spec.barcode != tt.barcode || spec.qty != tt.qty {
				t.Errorf("spec = %+v", spec)
			}
			switch {
			case tt.variation < 0 && spec.variation != nil:
				t.Errorf("unexpected variation %d", *spec.variation)
			case tt.variation >= 0 && (spec.variation == nil || *spec.variation != tt.variation):
				t.Errorf("variation = %v, want %d", spec.variation, tt.variation)
			}
		})
	}
}

func TestParseItemSpecRejects(t *testing.T) {
	for _, in := range []string{"", "x", "3:0", "3:-1", "3:two", "3/x", "3/-1", "@", "@:2", "0"} {
		if _, err := parseItemSpec(in); err == nil {
			t.Errorf("parseItemSpec(%q) accepted", in)
		}
	}
}

func TestReportMarkdown(t *testing.T) {
	r := &pos.Report{
		From:        "2024-03-01",
		To:          "2024-03-31",
		Revenue:     decimal.RequireFromString("125000"),
		NetProfit:   decimal.RequireFromString("40000"),
		TopProducts: []pos.ProductSales{{Name: "Tea | large", Quantity: 12, Revenue: decimal.RequireFromString("60000")}},
		Contacts: []models.Contact{
			{Name: "Budi", Type: models.ContactCustomer, Balance: decimal.RequireFromString("15000")},
			{Name: "Settled", Type: models.ContactCustomer},
		},
	}
	md := reportMarkdown(r)
	for _, want := range []string{
		"# Report 2024-03-01 to 2024-03-31",
		"| Revenue | 125,000.00 |",
		"| Net profit | 40,000.00 |",
		`| Tea \| large | 12 | 60,000.00 |`,
		"| Budi | customer | 15,000.00 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "Settled") {
		t.Error("zero balance listed under open balances")
	}
}

// useTempStore points the CLI at a fresh store and config file.
func useTempStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "till.db")
	t.Setenv("TILL_CONFIG", filepath.Join(dir, "config.json"))
	t.Setenv("TILL_DB_PATH", path)
	t.Setenv("TILL_AUTO_SYNC", "0")
	t.Setenv("TILL_LOG_LEVEL", "error")
	return path
}

func runCLI(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("till %s: %v", strings.Join(args, " "), err)
	}
}

func TestSaleCommandRecordsAndQueues(t *testing.T) {
	path := useTempStore(t)
	ctx := context.Background()

	runCLI(t, "product", "add", "--name", "Green tea", "--price", "5,000", "--stock", "10")

	store, err := db.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	products, err := pos.New(store).Products(ctx)
	store.Close()
	if err != nil || len(products) != 1 {
		t.Fatalf("products = %v, %v", products, err)
	}
	key := strconv.FormatInt(products[0].LocalKey, 10)

	runCLI(t, "sale", key+":3", "--cash", "20000")

	store, err = db.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	svc := pos.New(store)

	p, err := svc.Product(ctx, products[0].LocalKey)
	if err != nil {
		t.Fatal(err)
	}
	if p.Stock == nil || *p.Stock != 7 {
		t.Errorf("stock = %v, want 7", p.Stock)
	}
	sales, err := svc.Transactions(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 {
		t.Fatalf("sales = %d, want 1", len(sales))
	}
	if got := sales[0].Total.String(); got != "15000" {
		t.Errorf("total = %s, want 15000", got)
	}
	if got := sales[0].Change.String(); got != "5000" {
		t.Errorf("change = %s, want 5000", got)
	}
	n, err := store.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("sale was not queued for sync")
	}
}
