package pos

import (
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// wholesaleTier returns the tier covering qty. A zero Max has no upper bound.
func wholesaleTier(tiers []models.WholesalePrice, qty int) (models.WholesalePrice, bool) {
	for _, w := range tiers {
		if qty >= w.Min && (w.Max == 0 || qty <= w.Max) && w.Price.IsPositive() {
			return w, true
		}
	}
	return models.WholesalePrice{}, false
}

// Line prices qty units of p (or of its variation) for a cart. A matching
// wholesale tier replaces the price and suppresses the product discount;
// otherwise the discount applies, a fixed one never below zero.
func Line(p *models.Product, variation *int, qty int) (models.LineItem, error) {
	it := models.LineItem{
		ProductID: p.LocalKey,
		Name:      p.Name,
		Quantity:  qty,
		BasePrice: p.Price,
		Product:   p,
	}
	tiers := p.WholesalePrices
	if variation != nil {
		i := *variation
		if i < 0 || i >= len(p.Variations) {
			return it, invalid("items", "%q has no variation %d", p.Name, i)
		}
		v := p.Variations[i]
		it.Name = p.Name + " - " + v.Name
		it.BasePrice = v.Price
		it.VariationIndex = &i
		tiers = v.WholesalePrices
	}
	if qty <= 0 {
		return it, invalid("items", "quantity of %q must be positive", it.Name)
	}

	if w, ok := wholesaleTier(tiers, qty); ok {
		it.EffectivePrice = w.Price
		it.IsWholesale = true
		return it, nil
	}

	it.EffectivePrice = it.BasePrice
	if d := p.Discount; d != nil && d.Value.IsPositive() {
		if d.Type == "percentage" {
			it.EffectivePrice = it.BasePrice.Mul(hundred.Sub(d.Value)).Div(hundred)
			it.DiscountPercentage = d.Value
		} else {
			it.EffectivePrice = decimal.Max(decimal.Zero, it.BasePrice.Sub(d.Value))
			if it.BasePrice.IsPositive() {
				it.DiscountPercentage = it.BasePrice.Sub(it.EffectivePrice).Mul(hundred).Div(it.BasePrice).Round(2)
			}
		}
	}
	return it, nil
}
