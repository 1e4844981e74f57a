// Package money provides fixed-point monetary amounts. All balances and fees
// are carried as int64 minor units (kobo for cNGN) so arithmetic never drifts.
package money

import "fmt"

// MinorPerUnit is the number of minor units in one quote-currency unit.
const MinorPerUnit = 100

// Amount is a quantity of currency in minor units.
type Amount int64

// FromUnits converts whole currency units to an Amount.
func FromUnits(units int64) Amount {
	return Amount(units * MinorPerUnit)
}

// Units returns the whole-unit part of the amount, truncated toward zero.
func (a Amount) Units() int64 {
	return int64(a) / MinorPerUnit
}

// BasisPoints returns (a * bps) / 10000, floored at zero.
func (a Amount) BasisPoints(bps int64) Amount {
	fee := int64(a) * bps / 10_000
	if fee < 0 {
		fee = 0
	}
	return Amount(fee)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// String renders the amount as units.minor, e.g. "1000.50".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorPerUnit, v%MinorPerUnit)
}
