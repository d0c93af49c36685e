package projector

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// HoldingState is the running per-account position during a ledger fold.
type HoldingState struct {
	AccountID      uuid.UUID
	TotalUnits     decimal.Decimal
	AvgCostPerUnit decimal.Decimal
}

// State is the materialized view produced by folding a fund's unit ledger:
// every account's position plus the fund's aggregate outstanding units.
// The fold is pure - no I/O, no side effects - so replaying an unchanged
// ledger always produces an identical State.
type State struct {
	OutstandingUnits decimal.Decimal
	Holdings         map[uuid.UUID]*HoldingState // keyed by account ID
}

// NewState returns an empty fold state.
func NewState() *State {
	return &State{
		OutstandingUnits: decimal.Zero,
		Holdings:         make(map[uuid.UUID]*HoldingState),
	}
}

// Apply folds a single ledger entry into the state.
// Logic:
//   - SUBSCRIBE: newTotalUnits = oldTotalUnits + units;
//     newAvgCost = (oldTotalUnits x oldAvgCost + amount) / newTotalUnits
//     (weighted-average cost basis); outstanding += units
//   - REDEEM: totalUnits -= units with the average cost unchanged;
//     outstanding -= units. A redemption exceeding the units available at
//     this point in the ledger returns ErrReplayInconsistency.
func (s *State) Apply(entry *domain.FundUnitTransaction) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	holding := s.Holdings[entry.AccountID]
	if holding == nil {
		holding = &HoldingState{
			AccountID:      entry.AccountID,
			TotalUnits:     decimal.Zero,
			AvgCostPerUnit: decimal.Zero,
		}
		s.Holdings[entry.AccountID] = holding
	}

	switch entry.HoldingType {
	case domain.HoldingTypeSubscribe:
		newTotal := holding.TotalUnits.Add(entry.Units)
		// Weighted-average cost basis: fund units are fungible, so the pool's
		// average purchase price is the cost of every unit in it
		newAvgCost := holding.TotalUnits.Mul(holding.AvgCostPerUnit).
			Add(entry.Amount).
			Div(newTotal)

		holding.TotalUnits = newTotal
		holding.AvgCostPerUnit = newAvgCost
		s.OutstandingUnits = s.OutstandingUnits.Add(entry.Units)

	case domain.HoldingTypeRedeem:
		if entry.Units.GreaterThan(holding.TotalUnits) {
			return fmt.Errorf("%w: account %s redeems %s units but holds %s on %s",
				domain.ErrReplayInconsistency,
				entry.AccountID,
				entry.Units.String(),
				holding.TotalUnits.String(),
				entry.EffectiveDate.Format("2006-01-02"))
		}

		// Average cost basis of the remaining units does not change on a
		// partial redemption
		holding.TotalUnits = holding.TotalUnits.Sub(entry.Units)
		s.OutstandingUnits = s.OutstandingUnits.Sub(entry.Units)
	}

	return nil
}

// Replay folds a full ledger, in order, from an empty state.
// The caller is responsible for passing entries ordered by
// (effectiveDate, createdAt) ascending.
func Replay(entries []*domain.FundUnitTransaction) (*State, error) {
	state := NewState()
	for _, entry := range entries {
		if err := state.Apply(entry); err != nil {
			return nil, err
		}
	}

	// Safety check: the aggregate must always match the sum of holdings
	if err := state.CheckInvariant(); err != nil {
		return nil, err
	}

	return state, nil
}

// CheckInvariant verifies that the sum of all holdings' units equals the
// outstanding-unit aggregate within the ledger's rounding tolerance.
func (s *State) CheckInvariant() error {
	sum := decimal.Zero
	for _, holding := range s.Holdings {
		sum = sum.Add(holding.TotalUnits)
	}

	if !domain.WithinUnitTolerance(sum, s.OutstandingUnits) {
		return fmt.Errorf("%w: holdings sum %s does not match outstanding units %s",
			domain.ErrReplayInconsistency, sum.String(), s.OutstandingUnits.String())
	}

	return nil
}

// RealizedPnL returns the gain or loss realized by redeeming the given
// units at the given NAV against an average cost basis:
// units x (nav - avgCost), rounded to the amount precision.
func RealizedPnL(units, navPerUnit, avgCostPerUnit decimal.Decimal) decimal.Decimal {
	return domain.RoundAmount(units.Mul(navPerUnit.Sub(avgCostPerUnit)))
}
