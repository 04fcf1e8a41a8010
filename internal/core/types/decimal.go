// Package types provides helpers for fixed-point column values.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a fixed-point value stored in a decimal(p,s) column.
// Uses decimal.Decimal to avoid floating-point errors.
type Amount = decimal.Decimal

// NewAmountFromString creates an Amount from a string.
// This is the preferred constructor for literal values.
func NewAmountFromString(s string) (Amount, error) {
	return decimal.NewFromString(s)
}

// MustAmount creates an Amount from a string, panics on error.
// Use only for constants and tests.
func MustAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Amount value.
func Zero() Amount {
	return decimal.Zero
}

// FitsPrecision reports whether d can be stored in a decimal(precision, scale)
// column without losing digits.
func FitsPrecision(d Amount, precision, scale int) error {
	if precision <= 0 {
		return nil
	}
	if !d.Round(int32(scale)).Equal(d) {
		return fmt.Errorf("value %s has more than %d fractional digits", d.String(), scale)
	}
	intDigits := 0
	if whole := d.Abs().Truncate(0); !whole.IsZero() {
		intDigits = len(whole.String())
	}
	if intDigits > precision-scale {
		return fmt.Errorf("value %s exceeds decimal(%d,%d)", d.String(), precision, scale)
	}
	return nil
}

// Format renders d with exactly scale fractional digits.
func Format(d Amount, scale int) string {
	return d.StringFixed(int32(scale))
}
