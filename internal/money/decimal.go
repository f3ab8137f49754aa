// Package money provides the arbitrary-precision decimal helpers shared by
// every component that touches prices, quantities, or fees.
//
// Exchange APIs hand back numbers as JSON strings or floats; this package is
// the one place those strings are turned into decimal.Decimal so that no
// component ever does money arithmetic in float64.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance used for equality comparisons on decimal
// quantities, per the data-model invariant (10^-8).
var Epsilon = decimal.New(1, -8)

func init() {
	// 28+ significant digits for any decimal division (quote conversions,
	// fee-percentage math) pinned once for the whole process.
	decimal.DivisionPrecision = 28
}

// ParseAmount parses an exchange-supplied numeric string into a Decimal.
// It never accepts a float64 input on purpose: the spec requires prices be
// parsed via string to avoid binary-float drift.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse panics on a malformed literal; reserved for constants in tests
// and for operator-supplied configuration values already validated.
func MustParse(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return d
}

// EqualWithinEpsilon reports whether a and b differ by no more than Epsilon.
func EqualWithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// QuantizeDown rounds x down to the nearest multiple of quantum (truncation
// toward zero for positive values). quantum <= 0 is treated as "no
// quantization" and returns x unchanged.
//
// quantise(quantise(x)) == quantise(x) and quantise(x) <= x, per the spec's
// round-trip law.
func QuantizeDown(x, quantum decimal.Decimal) decimal.Decimal {
	if quantum.LessThanOrEqual(decimal.Zero) {
		return x
	}
	steps := x.Div(quantum).Truncate(0)
	return steps.Mul(quantum)
}

// QuantumFromDecimalPlaces returns 10^-places as a quantum, e.g. 8 -> 1e-8.
func QuantumFromDecimalPlaces(places int32) decimal.Decimal {
	if places < 0 {
		places = 0
	}
	return decimal.New(1, -places)
}

// PercentChange returns (to-from)/from * 100.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100))
}

// Pct applies a percentage (e.g. 0.1 meaning 0.1%) to a base amount.
func Pct(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(decimal.NewFromInt(100))
}
