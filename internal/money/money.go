// Package money provides the fixed-point cents type used for all ledger
// arithmetic. Amounts are stored and compared as integer cents and only
// converted to decimal dollars at the JSON boundary.
package money

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a signed amount of money in hundredths of a dollar.
type Cents int64

// Epsilon is the rounding tolerance applied when comparing a requested
// amount against a remaining balance.
const Epsilon Cents = 1

// ErrInvalidAmount is returned when a value cannot be parsed as a dollar amount.
var ErrInvalidAmount = errors.New("invalid amount")

// MaxAmount is the largest magnitude accepted from input, $10 trillion.
// Sums of many such amounts still fit in int64.
const MaxAmount Cents = 1_000_000_000_000_000

var (
	hundred    = decimal.NewFromInt(100)
	maxDecimal = decimal.NewFromInt(int64(MaxAmount))
)

// FromDecimal converts a dollar value to cents, rounding half away from zero.
// Values beyond MaxAmount are rejected rather than wrapped.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(maxDecimal) {
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d.String(), MaxAmount)
	}
	return Cents(cents.IntPart()), nil
}

// Parse parses a decimal string such as "42.17" into cents.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// Decimal returns the amount as decimal dollars.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// Dollars returns the amount as float dollars for display and scoring.
func (c Cents) Dollars() float64 {
	return c.Decimal().InexactFloat64()
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// String renders the amount with two fractional digits.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number in dollars, e.g. 42.17.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (c *Cents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Min returns the smaller of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}
