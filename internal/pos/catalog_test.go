package pos

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), db.DefaultFile))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s := New(store)
	s.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intp(n int) *int { return &n }

func actions(t *testing.T, s *Service) []string {
	t.Helper()
	entries, err := s.Store().PendingEntries(context.Background())
	if err != nil {
		t.Fatalf("PendingEntries failed: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action.String()
	}
	return out
}

func wantValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != field {
		t.Errorf("field = %q, want %q (%v)", ve.Field, field, ve)
	}
}

func TestSaveProductValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		p     models.Product
		field string
	}{
		{"missing name", models.Product{Price: dec("10")}, "name"},
		{"zero price", models.Product{Name: "Tea"}, "price"},
		{"unnamed variation", models.Product{Name: "Shirt", Variations: []models.Variation{{Price: dec("5")}}}, "variations"},
		{"free variation", models.Product{Name: "Shirt", Variations: []models.Variation{{Name: "S"}}}, "variations"},
		{"negative discount", models.Product{Name: "Tea", Price: dec("10"), Discount: &models.Discount{Value: dec("-1")}}, "discount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantValidation(t, s.SaveProduct(ctx, &tt.p), tt.field)
		})
	}
	if got := actions(t, s); len(got) != 0 {
		t.Errorf("rejected saves queued %v", got)
	}
}

func TestSaveProductRollsUpVariations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	p := &models.Product{
		Name: "Shirt",
		Variations: []models.Variation{
			{Name: "M", Price: dec("12"), PurchasePrice: dec("8"), Stock: intp(4)},
			{Name: "S", Price: dec("10"), PurchasePrice: dec("7"), Stock: intp(3)},
		},
	}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	if !p.Price.Equal(dec("10")) || !p.PurchasePrice.Equal(dec("7")) {
		t.Errorf("price = %s / %s, want lowest variation", p.Price, p.PurchasePrice)
	}
	if p.Stock == nil || *p.Stock != 7 {
		t.Errorf("stock = %v, want 7", p.Stock)
	}

	p.Variations = append(p.Variations, models.Variation{Name: "L", Price: dec("14")})
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	if p.Stock != nil {
		t.Errorf("stock = %d, want unlimited", *p.Stock)
	}

	got := actions(t, s)
	want := []string{"CREATE_PRODUCT", "UPDATE_PRODUCT"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("outbox = %v, want %v", got, want)
	}
}

func TestSaveProductBarcodeUnique(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a := &models.Product{Name: "Tea", Price: dec("5"), Barcode: "899001"}
	if err := s.SaveProduct(ctx, a); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	wantValidation(t, s.SaveProduct(ctx, &models.Product{Name: "Coffee", Price: dec("7"), Barcode: "899001"}), "barcode")

	// re-saving the owner of the barcode is fine
	a.Price = dec("6")
	if err := s.SaveProduct(ctx, a); err != nil {
		t.Errorf("edit rejected: %v", err)
	}

	found, err := s.ProductByBarcode(ctx, "899001")
	if err != nil || found.LocalKey != a.LocalKey {
		t.Errorf("ProductByBarcode = %+v, %v", found, err)
	}
	if _, err := s.ProductByBarcode(ctx, "nope"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing barcode err = %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	p := &models.Product{Name: "Tea", Price: dec("5"), Stock: intp(1)}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	got, err := s.AdjustStock(ctx, p.LocalKey, -3)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if *got.Stock != 0 {
		t.Errorf("stock = %d, want clamp at 0", *got.Stock)
	}
	before := len(actions(t, s))
	if _, err := s.AdjustStock(ctx, p.LocalKey, -1); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if after := len(actions(t, s)); after != before {
		t.Errorf("no-op decrease queued a mutation")
	}

	unlimited := &models.Product{Name: "Water", Price: dec("1")}
	if err := s.SaveProduct(ctx, unlimited); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	_, err = s.AdjustStock(ctx, unlimited.LocalKey, 1)
	wantValidation(t, err, "stock")
}

func TestDeleteCategoryInUse(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	c := &models.Category{Name: "Drinks"}
	if err := s.SaveCategory(ctx, c); err != nil {
		t.Fatalf("SaveCategory failed: %v", err)
	}
	p := &models.Product{Name: "Tea", Price: dec("5"), Category: "Drinks"}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	wantValidation(t, s.DeleteCategory(ctx, c.LocalKey), "category")

	if err := s.DeleteProduct(ctx, p.LocalKey); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if err := s.DeleteCategory(ctx, c.LocalKey); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}
	cats, err := s.Categories(ctx)
	if err != nil || len(cats) != 0 {
		t.Errorf("Categories = %v, %v", cats, err)
	}
	// never-synced records cancel out of the outbox entirely
	if got := actions(t, s); len(got) != 0 {
		t.Errorf("outbox = %v, want empty", got)
	}
}
