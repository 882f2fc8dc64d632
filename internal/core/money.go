// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals backed by shopspring/decimal. Persistence layers
// store them as integer cents so that SQL-side arithmetic stays exact too.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits an amount may carry.
const MoneyScale = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrAmountScale   = errors.New("amount has more than 2 decimal places")
	// ErrAmountRange marks a value that does not fit in int64 cents.
	ErrAmountRange = errors.New("amount out of range")
)

// MaxAmount is the largest credited or debited value a transaction may carry,
// a DECIMAL(12,2) ceiling. Balances stay within int64 cents for about nine
// million maximal entries.
var MaxAmount = NewMoneyFromCents(999_999_999_999)

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// Money is an exact signed decimal amount. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// NewMoneyFromCents builds an amount from integer minor units.
func NewMoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyScale)}
}

// MustParseMoney is ParseMoney for literals in tests and seeds.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney converts a decimal string to an exact amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Unlike
// float parsing there is no rounding: an amount with more than two fractional
// digits is rejected with ErrAmountScale. Signs are preserved; callers decide
// whether negative amounts are allowed.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Round(MoneyScale).Equal(d) {
		return Zero, fmt.Errorf("%w: %q", ErrAmountScale, s)
	}
	return Money{d: d}, nil
}

// Cents returns the amount in integer minor units. It fails with
// ErrAmountRange when the value does not fit in an int64 and with
// ErrAmountScale when it carries sub-cent digits.
func (m Money) Cents() (int64, error) {
	shifted := m.d.Shift(MoneyScale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrAmountScale, m.d.String())
	}
	if shifted.GreaterThan(maxCents) || shifted.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, m.String())
	}
	return shifted.IntPart(), nil
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Equal compares by value, so 1.5 equals 1.50.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

// MarshalJSON encodes the amount as a fixed-point string, e.g. "12.30".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts JSON numbers or strings. The number literal is parsed
// as a decimal directly, never through float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	parsed, err := ParseMoney(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
