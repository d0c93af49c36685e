package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fund represents a portfolio, with or without fund mode enabled.
// While fund mode is on, NavPerUnit and TotalOutstandingUnits are mutated
// only by the subscription/redemption processors and the recalculation
// engine; the conversion manager is the only component that flips FundMode.
//
// Invariant: TotalOutstandingUnits equals the sum of all investor holdings'
// TotalUnits, within UnitTolerance.
type Fund struct {
	ID                    uuid.UUID
	Name                  string
	BaseCurrency          string // fixed at fund creation
	FundMode              bool
	NavPerUnit            decimal.Decimal
	TotalOutstandingUnits decimal.Decimal
	CashBalance           decimal.Decimal // portfolio cash, part of the total fund value
	LastNavDate           *time.Time
}

// Validate ensures the fund adheres to domain rules.
// Returns an error if validation fails.
func (f *Fund) Validate() error {
	if f.Name == "" {
		return errors.New("fund name cannot be empty")
	}

	if f.BaseCurrency == "" {
		return errors.New("fund base currency cannot be empty")
	}

	if f.NavPerUnit.IsNegative() {
		return errors.New("nav per unit cannot be negative")
	}

	if f.TotalOutstandingUnits.IsNegative() {
		return errors.New("total outstanding units cannot be negative")
	}

	// A plain portfolio carries no fund state
	if !f.FundMode {
		if !f.NavPerUnit.IsZero() || !f.TotalOutstandingUnits.IsZero() {
			return errors.New("portfolio without fund mode must have zero nav and zero outstanding units")
		}
	}

	return nil
}

// TotalValueFromNav returns the fund's value implied by the stored NAV and
// outstanding units, rounded to the amount precision.
func (f *Fund) TotalValueFromNav() decimal.Decimal {
	return RoundAmount(f.NavPerUnit.Mul(f.TotalOutstandingUnits))
}
