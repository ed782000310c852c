package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnitMismatch is returned when arithmetic is attempted between two
// amounts carrying different currency or asset units.
var ErrUnitMismatch = fmt.Errorf("exchange amount unit mismatch")

// ExchangeAmount is a decimal amount tagged with a currency or asset unit,
// e.g. {12500.50 "USD"} or {0.25 "BTC"}. Amounts keep full decimal precision
// through every computation; rounding happens only at presentation.
type ExchangeAmount struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

// NewExchangeAmount builds an ExchangeAmount from a decimal and unit tag.
func NewExchangeAmount(amount decimal.Decimal, unit string) ExchangeAmount {
	return ExchangeAmount{Amount: amount, Unit: unit}
}

// Add returns a + b. It fails if the units differ.
func (a ExchangeAmount) Add(b ExchangeAmount) (ExchangeAmount, error) {
	if a.Unit != b.Unit {
		return ExchangeAmount{}, fmt.Errorf("%w: %q + %q", ErrUnitMismatch, a.Unit, b.Unit)
	}
	return ExchangeAmount{Amount: a.Amount.Add(b.Amount), Unit: a.Unit}, nil
}

// Sub returns a - b. It fails if the units differ.
func (a ExchangeAmount) Sub(b ExchangeAmount) (ExchangeAmount, error) {
	if a.Unit != b.Unit {
		return ExchangeAmount{}, fmt.Errorf("%w: %q - %q", ErrUnitMismatch, a.Unit, b.Unit)
	}
	return ExchangeAmount{Amount: a.Amount.Sub(b.Amount), Unit: a.Unit}, nil
}

// MulScalar scales the amount by a unitless factor, keeping the unit.
func (a ExchangeAmount) MulScalar(f decimal.Decimal) ExchangeAmount {
	return ExchangeAmount{Amount: a.Amount.Mul(f), Unit: a.Unit}
}

// IsZero reports whether the amount is exactly zero.
func (a ExchangeAmount) IsZero() bool {
	return a.Amount.IsZero()
}

func (a ExchangeAmount) String() string {
	return a.Amount.String() + " " + a.Unit
}
