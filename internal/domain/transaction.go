package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HoldingType represents the direction of a fund unit transaction.
type HoldingType string

const (
	HoldingTypeSubscribe HoldingType = "SUBSCRIBE"
	HoldingTypeRedeem    HoldingType = "REDEEM"
)

// FundUnitTransaction is one append-only ledger entry: an investor buying
// units into a fund (SUBSCRIBE) or selling units back (REDEEM).
//
// Entries are immutable once created except through the recalculation
// engine's controlled update path. NavPerUnit records the NAV that was in
// effect for this transaction and is never rewritten by later NAV
// recalculations.
//
// The replay ordering contract is (EffectiveDate, CreatedAt) ascending:
// same-day transactions are processed in original creation order, never
// re-ordered by amount or type.
type FundUnitTransaction struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	FundID        uuid.UUID
	HoldingType   HoldingType
	Units         decimal.Decimal // always positive
	NavPerUnit    decimal.Decimal // NAV used for this transaction
	Amount        decimal.Decimal // units x nav, rounded to amount precision
	EffectiveDate time.Time       // may be backdated
	CreatedAt     time.Time
	CashFlowID    uuid.UUID // linked cash flow, owned by this entry
}

// Validate ensures the ledger entry adheres to domain rules.
// Returns an error if validation fails.
func (t *FundUnitTransaction) Validate() error {
	if t.AccountID == uuid.Nil {
		return errors.New("transaction account ID cannot be empty")
	}

	if t.FundID == uuid.Nil {
		return errors.New("transaction fund ID cannot be empty")
	}

	if t.HoldingType != HoldingTypeSubscribe && t.HoldingType != HoldingTypeRedeem {
		return errors.New("transaction holding type must be SUBSCRIBE or REDEEM")
	}

	if t.Units.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction units must be positive")
	}

	if t.NavPerUnit.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction nav per unit must be positive")
	}

	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction amount must be positive")
	}

	// Amount must equal units x nav within the pricing tolerance. Units are
	// rounded to 3 decimals when derived from the amount, so the two figures
	// may legitimately differ by up to half a unit step priced at the entry's
	// NAV, plus one minor currency unit for the amount's own rounding.
	expected := RoundAmount(t.Units.Mul(t.NavPerUnit))
	tolerance := t.NavPerUnit.Mul(decimal.New(5, -(UnitPrecision + 1))).
		Add(decimal.New(1, -AmountPrecision))
	if t.Amount.Sub(expected).Abs().GreaterThan(tolerance) {
		return errors.New("transaction amount must equal units x nav per unit")
	}

	if t.EffectiveDate.IsZero() {
		return errors.New("transaction effective date cannot be zero")
	}

	return nil
}

// FlowSign returns +1 for subscriptions (cash into the fund) and -1 for
// redemptions (cash out).
func (t *FundUnitTransaction) FlowSign() decimal.Decimal {
	if t.HoldingType == HoldingTypeRedeem {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// CashFlow is the cash movement paired 1:1 with a FundUnitTransaction.
// Amount is signed: positive for subscription inflow, negative for
// redemption outflow. A cash flow is exclusively owned by its transaction
// and deleted together with it.
type CashFlow struct {
	ID            uuid.UUID
	FundID        uuid.UUID
	FlowDate      time.Time
	Amount        decimal.Decimal // signed
	Description   string
	FundingSource string
}

// Validate ensures the cash flow adheres to domain rules.
func (c *CashFlow) Validate() error {
	if c.FundID == uuid.Nil {
		return errors.New("cash flow fund ID cannot be empty")
	}

	if c.Amount.IsZero() {
		return errors.New("cash flow amount cannot be zero")
	}

	if c.FlowDate.IsZero() {
		return errors.New("cash flow date cannot be zero")
	}

	return nil
}
