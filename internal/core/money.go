// Package core provides money parsing and handling utilities.
//
// Money keeps amounts as exact decimals through shopspring/decimal, so
// parsing never touches float64 and stored amounts survive a load and save
// unchanged. Rounding to cents happens only in String.
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount. The zero value is 0. Values are kept in
// canonical form (no trailing fractional zeros) so equal amounts compare
// equal with reflect.DeepEqual.
type Money struct {
	d decimal.Decimal
}

const (
	// maxExp bounds a single amount to 10^maxExp. Sums are exact and may
	// exceed it.
	maxExp int32 = 15

	// maxPlaces bounds the fractional digits of a single amount.
	maxPlaces int32 = 20
)

var maxMoney = decimal.New(1, maxExp)

// ParseMoney converts a decimal string to Money without rounding. Both dot
// (12.34) and comma (12,34) separators are accepted and the sign is kept.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("-12,34") -> -12.34
//	ParseMoney("1.005")  -> 1.005
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal checks that d is within range and keeps it exactly.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsZero() {
		return Money{}, nil
	}
	if d.Exponent() > maxExp || d.Abs().GreaterThan(maxMoney) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	if d.Exponent() < -maxPlaces && !d.Equal(d.Truncate(maxPlaces)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), maxPlaces)
	}
	return canonical(d), nil
}

// canonical strips trailing fractional zeros so that one amount has exactly
// one representation.
func canonical(d decimal.Decimal) Money {
	if d.IsZero() {
		return Money{}
	}
	return Money{d: decimal.RequireFromString(d.String())}
}

// MustMoney is ParseMoney for constants and tests.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String formats the amount rounded half-up to cents, for display.
func (m Money) String() string {
	return m.d.StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return canonical(m.d.Add(o.d))
}

func (m Money) Sub(o Money) Money {
	return canonical(m.d.Sub(o.d))
}

func (m Money) Abs() Money {
	if m.IsNegative() {
		return canonical(m.d.Neg())
	}
	return m
}

// Cmp returns -1, 0 or +1 as m is less than, equal to or greater than o.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

func (m Money) Sign() int {
	return m.d.Sign()
}

func (m Money) IsNegative() bool {
	return m.d.Sign() < 0
}

func (m Money) IsZero() bool {
	return m.d.Sign() == 0
}

// MarshalJSON writes the exact amount as a bare JSON number (-20, 12.345).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
