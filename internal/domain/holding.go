package domain

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvestorHolding is one account's aggregate position in one fund.
// Created on the account's first subscription and never hard-deleted: a
// holding with TotalUnits == 0 is logically closed but retained for audit
// history.
//
// AvgCostPerUnit follows weighted-average cost-basis accounting: recomputed
// on every subscription, unchanged on redemption.
type InvestorHolding struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	FundID         uuid.UUID
	TotalUnits     decimal.Decimal
	AvgCostPerUnit decimal.Decimal
}

// Validate ensures the holding adheres to domain rules.
// Returns an error if validation fails.
func (h *InvestorHolding) Validate() error {
	if h.AccountID == uuid.Nil {
		return errors.New("holding account ID cannot be empty")
	}

	if h.FundID == uuid.Nil {
		return errors.New("holding fund ID cannot be empty")
	}

	if h.TotalUnits.IsNegative() {
		return errors.New("holding total units cannot be negative")
	}

	if h.AvgCostPerUnit.IsNegative() {
		return errors.New("holding average cost per unit cannot be negative")
	}

	return nil
}

// TotalInvestment returns TotalUnits x AvgCostPerUnit rounded to the amount
// precision (the holding's cost basis).
func (h *InvestorHolding) TotalInvestment() decimal.Decimal {
	return RoundAmount(h.TotalUnits.Mul(h.AvgCostPerUnit))
}

// CurrentValue returns the holding's value at the given NAV per unit.
func (h *InvestorHolding) CurrentValue(navPerUnit decimal.Decimal) decimal.Decimal {
	return RoundAmount(h.TotalUnits.Mul(navPerUnit))
}

// UnrealizedPnL returns CurrentValue - TotalInvestment at the given NAV.
func (h *InvestorHolding) UnrealizedPnL(navPerUnit decimal.Decimal) decimal.Decimal {
	return h.CurrentValue(navPerUnit).Sub(h.TotalInvestment())
}

// IsClosed reports whether the holding has been fully redeemed.
func (h *InvestorHolding) IsClosed() bool {
	return h.TotalUnits.IsZero()
}
