package domain

import "github.com/shopspring/decimal"

// Precision contract for the ledger.
// Units carry 3 fractional digits, currency amounts 2, stored NAV 4.
// The aggregate-units invariant is checked within UnitTolerance.
const (
	UnitPrecision   = 3
	AmountPrecision = 2
	NavPrecision    = 4
)

// UnitTolerance is the rounding tolerance for comparing unit aggregates
// (0.001 units).
var UnitTolerance = decimal.New(1, -UnitPrecision)

// RoundUnits rounds a unit quantity to the ledger's unit precision.
func RoundUnits(d decimal.Decimal) decimal.Decimal {
	return d.Round(UnitPrecision)
}

// RoundAmount rounds a currency amount to the ledger's amount precision.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPrecision)
}

// RoundNav rounds a NAV-per-unit value to the ledger's NAV precision.
func RoundNav(d decimal.Decimal) decimal.Decimal {
	return d.Round(NavPrecision)
}

// WithinUnitTolerance reports whether two unit quantities are equal within
// the ledger's rounding tolerance.
func WithinUnitTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(UnitTolerance)
}
