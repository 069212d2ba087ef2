package pos

import (
	"context"
	"strings"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

var taxWords = []string{"pajak", "ppn", "tax"}

// isTaxName reports whether a fee name reads as a tax.
func isTaxName(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range taxWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// SaveFee validates and stores a fee. IsTax follows from the name.
func (s *Service) SaveFee(ctx context.Context, f *models.Fee) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return invalid("name", "fee name is required")
	}
	if f.Value.IsNegative() {
		return invalid("value", "fee value cannot be negative")
	}
	switch f.Type {
	case "":
		f.Type = models.FeePercentage
	case models.FeePercentage, models.FeeFixed:
	default:
		return invalid("type", "fee type must be percentage or fixed")
	}
	f.IsTax = isTaxName(f.Name)
	f.Touch(s.stamp())
	_, err := s.store.PutRecorded(ctx, models.EntityFee, f)
	return err
}

// DeleteFee deletes a fee.
func (s *Service) DeleteFee(ctx context.Context, key int64) error {
	return s.store.DeleteRecorded(ctx, models.EntityFee, key)
}

// Fees lists every fee.
func (s *Service) Fees(ctx context.Context) ([]models.Fee, error) {
	var out []models.Fee
	err := s.store.GetAll(ctx, models.Fees, &out)
	return out, err
}

// Apply charges f on an amount already net of discounts. Percentage fees
// round to whole currency units.
func Apply(f models.Fee, base decimal.Decimal) models.AppliedFee {
	amount := f.Value
	if f.Type == models.FeePercentage {
		amount = base.Mul(f.Value).Div(decimal.NewFromInt(100)).Round(0)
	}
	return models.AppliedFee{
		FeeID:     f.LocalKey,
		Name:      f.Name,
		Type:      f.Type,
		Value:     f.Value,
		IsDefault: f.IsDefault,
		IsTax:     f.IsTax,
		Amount:    amount,
	}
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SaveUser validates and stores a cashier account on behalf of actor. New
// accounts need a 4-digit PIN; edits may leave it empty to keep the old one.
// PINs are unique and only owners may create owners.
func (s *Service) SaveUser(ctx context.Context, actor *models.User, u *models.User) error {
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return invalid("name", "user name is required")
	}
	switch u.Role {
	case "":
		u.Role = models.RoleCashier
	case models.RoleOwner, models.RoleManager, models.RoleCashier:
	default:
		return invalid("role", "unknown role %q", u.Role)
	}
	if u.LocalKey == 0 && u.PIN == "" {
		return invalid("pin", "a new user needs a PIN")
	}
	if u.PIN != "" && !validPIN(u.PIN) {
		return invalid("pin", "PIN must be 4 digits")
	}
	if actor != nil && actor.Role != models.RoleOwner && u.Role == models.RoleOwner {
		return invalid("role", "only an owner can grant the owner role")
	}

	return s.store.RunTx(ctx, cols(models.Users), db.ReadWrite, func(tx *db.Tx) error {
		var all []models.User
		if err := tx.GetAll(models.Users, &all); err != nil {
			return err
		}
		for _, o := range all {
			if o.LocalKey == u.LocalKey {
				if u.PIN == "" {
					u.PIN = o.PIN
				}
				continue
			}
			if u.PIN != "" && o.PIN == u.PIN {
				return invalid("pin", "PIN already in use")
			}
		}
		u.Touch(s.stamp())
		_, err := tx.PutRecorded(models.EntityUser, u)
		return err
	})
}

// DeleteUser deletes a user other than actor.
func (s *Service) DeleteUser(ctx context.Context, actor *models.User, key int64) error {
	if actor != nil && actor.LocalKey == key {
		return invalid("user", "you cannot delete your own account")
	}
	return s.store.DeleteRecorded(ctx, models.EntityUser, key)
}

// Users lists every user.
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.store.GetAll(ctx, models.Users, &out)
	return out, err
}

// Login returns the user holding pin.
func (s *Service) Login(ctx context.Context, pin string) (*models.User, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].PIN == pin {
			return &users[i], nil
		}
	}
	return nil, invalid("pin", "unknown PIN")
}
