package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcus/till/internal/dateparse"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

// moneyValue is a pflag.Value holding a decimal amount.
type moneyValue struct {
	d   *decimal.Decimal
	set bool
}

var _ pflag.Value = (*moneyValue)(nil)

func newMoneyValue(p *decimal.Decimal) *moneyValue {
	return &moneyValue{d: p}
}

func (m *moneyValue) String() string {
	if m.d == nil {
		return "0"
	}
	return m.d.String()
}

func (m *moneyValue) Set(s string) error {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*m.d = d
	m.set = true
	return nil
}

func (m *moneyValue) Type() string { return "amount" }

// dateValue is a pflag.Value for a calendar date in any form
// dateparse accepts.
type dateValue struct {
	s   *string
	now func() time.Time
}

var _ pflag.Value = (*dateValue)(nil)

func newDateValue(p *string) *dateValue {
	return &dateValue{s: p, now: time.Now}
}

func (d *dateValue) String() string {
	if d.s == nil {
		return ""
	}
	return *d.s
}

func (d *dateValue) Set(s string) error {
	date, err := dateparse.ParseFrom(s, d.now())
	if err != nil {
		return err
	}
	*d.s = date
	return nil
}

func (d *dateValue) Type() string { return "date" }
