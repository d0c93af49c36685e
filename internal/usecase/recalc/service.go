package recalc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
	"github.com/joaopcs/fundledger-backend/internal/fundlock"
	"github.com/joaopcs/fundledger-backend/internal/usecase/nav"
	"github.com/joaopcs/fundledger-backend/internal/usecase/projector"
)

// NavCalculator is the slice of the NAV service the engine needs: derive,
// without persisting, the NAV implied by the current valuation.
type NavCalculator interface {
	Preview(ctx context.Context, fund *domain.Fund, asOf *time.Time) (*nav.Result, error)
}

// Service is the recalculation engine: it rebuilds all derived state
// (holdings, outstanding units, current NAV) from the unit ledger after a
// retroactive correction - a backdated insert, an edit, or a deletion of a
// historical transaction.
//
// Per fund the engine is a one-slot state machine (IDLE -> RECALCULATING ->
// IDLE or FAILED): only one recalculation may be in flight, and competing
// writes fail fast with ErrConcurrentRecalculation.
type Service struct {
	FundRepo    domain.FundRepository
	HoldingRepo domain.HoldingRepository
	LedgerRepo  domain.LedgerRepository

	Nav   NavCalculator
	Locks *fundlock.Registry

	logger *zap.Logger
}

// NewService creates a new recalculation Service instance
func NewService(
	fundRepo domain.FundRepository,
	holdingRepo domain.HoldingRepository,
	ledgerRepo domain.LedgerRepository,
	navCalc NavCalculator,
	locks *fundlock.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		FundRepo:    fundRepo,
		HoldingRepo: holdingRepo,
		LedgerRepo:  ledgerRepo,
		Nav:         navCalc,
		Locks:       locks,
		logger:      logger,
	}
}

// ApplyChange replays the fund's full ledger with the given correction
// applied and commits the rebuilt state atomically.
// Logic:
//  1. Take the fund's recalculation slot (fail fast when occupied)
//  2. Load the complete ledger and apply the change in memory
//  3. Sort by (effectiveDate, createdAt) ascending and fold from zero
//     through the projector - the identical per-transaction logic the
//     processors use. A redemption exceeding the units available at its
//     point in history aborts with ErrReplayInconsistency and nothing is
//     persisted
//  4. Refresh the fund's current NAV from the valuation as of now;
//     historical per-entry NAV snapshots are never rewritten, and a
//     valuation failure keeps the previous NAV rather than failing the
//     replay. The valuation is read before the batch commits, so a cash
//     flow the change itself introduces moves the NAV only on the next
//     recomputation
//  5. Commit the ledger change, every holding, and the fund counters as one
//     batch; any failure discards the batch and leaves prior state untouched
func (s *Service) ApplyChange(ctx context.Context, fundID uuid.UUID, change domain.LedgerChange) (*domain.Fund, []*domain.InvestorHolding, error) {
	done, err := s.Locks.BeginRecalc(fundID)
	if err != nil {
		return nil, nil, err
	}
	defer done()

	fund, err := s.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, nil, err
	}
	if !fund.FundMode {
		return nil, nil, domain.ErrNotAFund
	}

	entries, err := s.LedgerRepo.ListByFund(ctx, fundID)
	if err != nil {
		return nil, nil, err
	}

	entries, err = applyChange(entries, change)
	if err != nil {
		return nil, nil, err
	}

	sortEntries(entries)

	state, err := projector.Replay(entries)
	if err != nil {
		s.logger.Warn("recalculation aborted, ledger unchanged",
			zap.String("fund_id", fundID.String()),
			zap.Error(err))
		return nil, nil, err
	}

	holdings, err := s.rebuildHoldings(ctx, fundID, state)
	if err != nil {
		return nil, nil, err
	}

	fund.TotalOutstandingUnits = state.OutstandingUnits

	// Current NAV refresh uses the valuation as of "now". The whole batch
	// still commits when the valuation source is down; only nav/lastNavDate
	// stay at their previous values.
	if navResult, navErr := s.Nav.Preview(ctx, fund, nil); navErr != nil {
		s.logger.Warn("valuation unavailable during recalculation, previous nav retained",
			zap.String("fund_id", fundID.String()),
			zap.Error(navErr))
	} else {
		fund.NavPerUnit = navResult.NavPerUnit
		fund.LastNavDate = &navResult.AsOf
	}

	batch := &domain.ReplayBatch{
		Fund:     fund,
		Holdings: holdings,
		Change:   change,
	}

	if err := s.LedgerRepo.CommitReplay(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("failed to commit replay batch: %w", err)
	}

	s.logger.Info("recalculation committed",
		zap.String("fund_id", fundID.String()),
		zap.Int("entries", len(entries)),
		zap.Int("holdings", len(holdings)),
		zap.String("outstanding_units", fund.TotalOutstandingUnits.String()))

	return fund, holdings, nil
}

// RecalculateAllHoldings rebuilds every holding and the fund counters from
// the unchanged ledger - the manual consistency-repair operation. A replay
// over an unchanged ledger is a pure fold, so running it twice produces
// identical state.
func (s *Service) RecalculateAllHoldings(ctx context.Context, fundID uuid.UUID) (*domain.Fund, []*domain.InvestorHolding, error) {
	return s.ApplyChange(ctx, fundID, domain.LedgerChange{})
}

// UpdateTransactionInput carries the editable fields of a ledger entry.
// Nil fields are left unchanged. When only one of Units/Amount is given the
// other is re-derived from the NAV recorded on the entry.
type UpdateTransactionInput struct {
	Units         *decimal.Decimal
	Amount        *decimal.Decimal
	Description   *string
	EffectiveDate *time.Time
}

// UpdateTransaction is the controlled edit path for a historical entry: the
// edit and the full downstream replay commit together or not at all.
func (s *Service) UpdateTransaction(ctx context.Context, transactionID uuid.UUID, input UpdateTransactionInput) (*domain.FundUnitTransaction, error) {
	orig, err := s.LedgerRepo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	flow, err := s.LedgerRepo.GetCashFlowByID(ctx, orig.CashFlowID)
	if err != nil {
		return nil, err
	}

	updated := *orig
	switch {
	case input.Units != nil && input.Amount != nil:
		updated.Units = domain.RoundUnits(*input.Units)
		updated.Amount = domain.RoundAmount(*input.Amount)
	case input.Units != nil:
		updated.Units = domain.RoundUnits(*input.Units)
		updated.Amount = domain.RoundAmount(updated.Units.Mul(orig.NavPerUnit))
	case input.Amount != nil:
		updated.Amount = domain.RoundAmount(*input.Amount)
		updated.Units = domain.RoundUnits(updated.Amount.Div(orig.NavPerUnit))
	}
	if input.EffectiveDate != nil {
		updated.EffectiveDate = *input.EffectiveDate
	}
	// CreatedAt is the replay tie-break and survives every edit
	updated.CreatedAt = orig.CreatedAt

	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	updatedFlow := *flow
	updatedFlow.Amount = updated.Amount.Mul(updated.FlowSign())
	updatedFlow.FlowDate = updated.EffectiveDate
	if input.Description != nil {
		updatedFlow.Description = *input.Description
	}

	if _, _, err := s.ApplyChange(ctx, orig.FundID, domain.LedgerChange{
		Update:     &updated,
		UpdateFlow: &updatedFlow,
	}); err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteTransaction removes a historical entry (and its cash flow) and
// replays everything downstream of it.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID uuid.UUID) error {
	orig, err := s.LedgerRepo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}

	id := orig.ID
	_, _, err = s.ApplyChange(ctx, orig.FundID, domain.LedgerChange{Delete: &id})
	return err
}

// rebuildHoldings merges the fold state with the stored holdings: existing
// rows keep their IDs, accounts the replay no longer knows revert to a
// closed (zero-unit) holding retained for audit, new accounts get new rows.
func (s *Service) rebuildHoldings(ctx context.Context, fundID uuid.UUID, state *projector.State) ([]*domain.InvestorHolding, error) {
	existing, err := s.HoldingRepo.ListByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[uuid.UUID]*domain.InvestorHolding, len(existing))
	for _, h := range existing {
		byAccount[h.AccountID] = h
	}

	holdings := make([]*domain.InvestorHolding, 0, len(state.Holdings))
	seen := make(map[uuid.UUID]bool, len(state.Holdings))

	for accountID, hs := range state.Holdings {
		holding := byAccount[accountID]
		if holding == nil {
			holding = &domain.InvestorHolding{
				ID:        uuid.New(),
				AccountID: accountID,
				FundID:    fundID,
			}
		}
		holding.TotalUnits = hs.TotalUnits
		holding.AvgCostPerUnit = hs.AvgCostPerUnit
		holdings = append(holdings, holding)
		seen[accountID] = true
	}

	for _, h := range existing {
		if !seen[h.AccountID] {
			h.TotalUnits = decimal.Zero
			h.AvgCostPerUnit = decimal.Zero
			holdings = append(holdings, h)
		}
	}

	return holdings, nil
}

func applyChange(entries []*domain.FundUnitTransaction, change domain.LedgerChange) ([]*domain.FundUnitTransaction, error) {
	switch {
	case change.Insert != nil:
		if err := change.Insert.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return append(entries, change.Insert), nil

	case change.Update != nil:
		for i, e := range entries {
			if e.ID == change.Update.ID {
				entries[i] = change.Update
				return entries, nil
			}
		}
		return nil, domain.ErrTransactionNotFound

	case change.Delete != nil:
		for i, e := range entries {
			if e.ID == *change.Delete {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, domain.ErrTransactionNotFound

	default:
		return entries, nil
	}
}

// sortEntries restores the replay ordering contract after an in-memory
// change: (effectiveDate, createdAt) ascending, stable so that same-instant
// entries keep their relative order.
func sortEntries(entries []*domain.FundUnitTransaction) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EffectiveDate.Equal(entries[j].EffectiveDate) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].EffectiveDate.Before(entries[j].EffectiveDate)
	})
}
