// Package money holds the fixed-point amount type used for balances and
// ledger entries.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept in minor units.
const Scale = 2

// ErrInvalidAmount is returned for amounts that are not a positive, finite
// number representable in minor units.
var ErrInvalidAmount = errors.New("invalid amount")

var maxAmount = decimal.New(math.MaxInt64, -Scale)

// Inputs are bounded before any rescaling: decimal rounds by building a
// big.Int with as many digits as the exponent asks for.
const (
	maxInputLength = 64
	minExponent    = -maxInputLength
	maxExponent    = 19
)

// Amount is a monetary value in minor units: Amount(12345) is 123.45.
type Amount int64

// Parse reads a decimal string and rounds it half-to-even to Scale places.
func Parse(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if len(s) > maxInputLength {
		return 0, fmt.Errorf("%w: amount is too long", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	d = d.RoundBank(Scale)
	if d.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	return Amount(d.Shift(Scale).IntPart()), nil
}

// ParsePositive is Parse restricted to amounts greater than zero after rounding.
func ParsePositive(raw string) (Amount, error) {
	a, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	if a <= 0 {
		return 0, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	return a, nil
}

// Add returns a+b, failing instead of wrapping around.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: result out of range", ErrInvalidAmount)
	}
	return a + b, nil
}

// Sub returns a-b, failing instead of wrapping around.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b == math.MinInt64 {
		return 0, fmt.Errorf("%w: result out of range", ErrInvalidAmount)
	}
	return a.Add(-b)
}

// Decimal converts the amount back to major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// MarshalJSON renders the amount as a fixed two-decimal string so clients do
// not round-trip balances through floating point.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
