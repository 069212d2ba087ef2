package pos

import (
	"context"
	"strings"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

// SaveCategory creates or renames a category.
func (s *Service) SaveCategory(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("name", "category name is required")
	}
	c.Touch(s.stamp())
	_, err := s.store.PutRecorded(ctx, models.EntityCategory, c)
	return err
}

// DeleteCategory deletes a category no product still uses.
func (s *Service) DeleteCategory(ctx context.Context, key int64) error {
	return s.store.RunTx(ctx, cols(models.Categories, models.Products), db.ReadWrite, func(tx *db.Tx) error {
		var c models.Category
		if err := tx.Get(models.Categories, key, &c); err != nil {
			return err
		}
		var used []models.Product
		if err := tx.GetAllByIndex(models.Products, "category", db.Only(c.Name), &used); err != nil {
			return err
		}
		if len(used) > 0 {
			return invalid("category", "%q is used by %d product(s)", c.Name, len(used))
		}
		return tx.DeleteRecorded(models.EntityCategory, key)
	})
}

// Categories lists every category.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := s.store.GetAll(ctx, models.Categories, &out)
	return out, err
}

// normalizeProduct validates p and derives the fields that follow from its
// variations: the lowest variation price and purchase price, and the summed
// stock (nil when any variation is unlimited).
func normalizeProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Barcode = strings.TrimSpace(p.Barcode)
	if p.Name == "" {
		return invalid("name", "product name is required")
	}
	if len(p.Variations) == 0 {
		if !p.Price.IsPositive() {
			return invalid("price", "price must be greater than zero")
		}
		return normalizeDiscount(p)
	}

	var (
		minPrice, minPurchase decimal.Decimal
		total                 int
		unlimited             bool
	)
	for i, v := range p.Variations {
		if strings.TrimSpace(v.Name) == "" {
			return invalid("variations", "variation %d needs a name", i+1)
		}
		if !v.Price.IsPositive() {
			return invalid("variations", "variation %q needs a price greater than zero", v.Name)
		}
		if i == 0 || v.Price.LessThan(minPrice) {
			minPrice = v.Price
		}
		if i == 0 || v.PurchasePrice.LessThan(minPurchase) {
			minPurchase = v.PurchasePrice
		}
		if v.Stock == nil {
			unlimited = true
		} else {
			total += *v.Stock
		}
	}
	p.Price = minPrice
	p.PurchasePrice = minPurchase
	p.Stock = nil
	if !unlimited {
		p.Stock = &total
	}
	return normalizeDiscount(p)
}

func normalizeDiscount(p *models.Product) error {
	if p.Discount == nil {
		return nil
	}
	if p.Discount.Value.IsNegative() {
		return invalid("discount", "discount cannot be negative")
	}
	if p.Discount.Value.IsZero() {
		p.Discount = nil
		return nil
	}
	if p.Discount.Type == "" {
		p.Discount.Type = "fixed"
	}
	return nil
}

// SaveProduct validates and stores p, recording CREATE or UPDATE.
func (s *Service) SaveProduct(ctx context.Context, p *models.Product) error {
	if err := normalizeProduct(p); err != nil {
		return err
	}
	p.Touch(s.stamp())
	return s.store.RunTx(ctx, cols(models.Products), db.ReadWrite, func(tx *db.Tx) error {
		if p.Barcode != "" {
			var same []models.Product
			if err := tx.GetAllByIndex(models.Products, "barcode", db.Only(p.Barcode), &same); err != nil {
				return err
			}
			for _, o := range same {
				if o.LocalKey != p.LocalKey {
					return invalid("barcode", "barcode %s already belongs to %q", p.Barcode, o.Name)
				}
			}
		}
		_, err := tx.PutRecorded(models.EntityProduct, p)
		return err
	})
}

// DeleteProduct deletes a product.
func (s *Service) DeleteProduct(ctx context.Context, key int64) error {
	return s.store.DeleteRecorded(ctx, models.EntityProduct, key)
}

// Product loads one product.
func (s *Service) Product(ctx context.Context, key int64) (*models.Product, error) {
	var p models.Product
	if err := s.store.Get(ctx, models.Products, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Products lists every product.
func (s *Service) Products(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := s.store.GetAll(ctx, models.Products, &out)
	return out, err
}

// ProductByBarcode finds the product with barcode, or db.ErrNotFound.
func (s *Service) ProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var found []models.Product
	if err := s.store.GetAllByIndex(ctx, models.Products, "barcode", db.Only(barcode), &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, db.ErrNotFound
	}
	return &found[0], nil
}

// AdjustStock adds delta to a product's stock. Products with unlimited
// stock are rejected; a decrease never goes below zero.
func (s *Service) AdjustStock(ctx context.Context, key int64, delta int) (*models.Product, error) {
	var p models.Product
	err := s.store.RunTx(ctx, cols(models.Products), db.ReadWrite, func(tx *db.Tx) error {
		if err := tx.Get(models.Products, key, &p); err != nil {
			return err
		}
		if p.Stock == nil {
			return invalid("stock", "%q has unlimited stock", p.Name)
		}
		next := *p.Stock + delta
		if next < 0 {
			next = 0
		}
		if next == *p.Stock {
			return nil
		}
		p.Stock = &next
		p.Touch(s.stamp())
		_, err := tx.PutRecorded(models.EntityProduct, &p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
