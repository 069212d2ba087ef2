package pos

import (
	"testing"

	"github.com/marcus/till/internal/models"
)

func TestLinePricing(t *testing.T) {
	tiers := []models.WholesalePrice{{Min: 10, Max: 49, Price: dec("4000")}, {Min: 50, Price: dec("3500")}}
	tests := []struct {
		name      string
		p         models.Product
		variation *int
		qty       int
		effective string
		pct       string
		wholesale bool
	}{
		{"plain", models.Product{Name: "Tea", Price: dec("5000")}, nil, 2, "5000", "0", false},
		{"percentage discount", models.Product{Name: "Tea", Price: dec("5000"),
			Discount: &models.Discount{Type: "percentage", Value: dec("10")}}, nil, 1, "4500", "10", false},
		{"fixed discount", models.Product{Name: "Tea", Price: dec("5000"),
			Discount: &models.Discount{Type: "fixed", Value: dec("1000")}}, nil, 1, "4000", "20", false},
		{"fixed discount floors at zero", models.Product{Name: "Tea", Price: dec("500"),
			Discount: &models.Discount{Type: "fixed", Value: dec("1000")}}, nil, 1, "0", "100", false},
		{"wholesale tier", models.Product{Name: "Tea", Price: dec("5000"), WholesalePrices: tiers,
			Discount: &models.Discount{Type: "percentage", Value: dec("10")}}, nil, 12, "4000", "0", true},
		{"open-ended tier", models.Product{Name: "Tea", Price: dec("5000"), WholesalePrices: tiers}, nil, 80, "3500", "0", true},
		{"below tiers", models.Product{Name: "Tea", Price: dec("5000"), WholesalePrices: tiers}, nil, 9, "5000", "0", false},
		{"variation", models.Product{Name: "Shirt", Price: dec("50000"), Variations: []models.Variation{
			{Name: "S", Price: dec("50000")},
			{Name: "XL", Price: dec("60000"), WholesalePrices: []models.WholesalePrice{{Min: 3, Max: 5, Price: dec("55000")}}},
		}}, intp(1), 3, "55000", "0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := Line(&tt.p, tt.variation, tt.qty)
			if err != nil {
				t.Fatalf("Line failed: %v", err)
			}
			if it.EffectivePrice.String() != tt.effective {
				t.Errorf("effective = %s, want %s", it.EffectivePrice, tt.effective)
			}
			if it.DiscountPercentage.String() != tt.pct {
				t.Errorf("discount%% = %s, want %s", it.DiscountPercentage, tt.pct)
			}
			if it.IsWholesale != tt.wholesale {
				t.Errorf("wholesale = %v, want %v", it.IsWholesale, tt.wholesale)
			}
		})
	}
}

func TestLineRejects(t *testing.T) {
	p := &models.Product{Name: "Tea", Price: dec("5000")}
	if _, err := Line(p, nil, 0); err == nil {
		t.Error("zero quantity accepted")
	}
	wantValidation(t, func() error { _, err := Line(p, intp(0), 1); return err }(), "items")
}

func TestLineNamesVariation(t *testing.T) {
	p := &models.Product{Name: "Shirt", Variations: []models.Variation{{Name: "M", Price: dec("45000")}}}
	it, err := Line(p, intp(0), 1)
	if err != nil {
		t.Fatalf("Line failed: %v", err)
	}
	if it.Name != "Shirt - M" || it.BasePrice.String() != "45000" || *it.VariationIndex != 0 {
		t.Errorf("line = %+v", it)
	}
}
