package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
	"github.com/joaopcs/fundledger-backend/internal/fundlock"
	"github.com/joaopcs/fundledger-backend/internal/usecase/projector"
)

// Recalculator is the slice of the recalculation engine the processor needs
// for backdated subscriptions: apply a ledger change through a full replay.
type Recalculator interface {
	ApplyChange(ctx context.Context, fundID uuid.UUID, change domain.LedgerChange) (*domain.Fund, []*domain.InvestorHolding, error)
}

// SubscribeInput represents the input for a subscription
type SubscribeInput struct {
	AccountID     uuid.UUID
	FundID        uuid.UUID
	Amount        decimal.Decimal
	EffectiveDate time.Time // zero means now; earlier than the ledger head routes through recalculation
	Description   string
	FundingSource string
}

// SubscribeResult represents the outcome of a subscription
type SubscribeResult struct {
	Transaction *domain.FundUnitTransaction
	Holding     *domain.InvestorHolding
}

// Service handles subscription processing: validating a cash-in request,
// pricing it at the fund's stored NAV, and appending it to the unit ledger
// as one atomic unit of work.
type Service struct {
	FundRepo    domain.FundRepository
	HoldingRepo domain.HoldingRepository
	LedgerRepo  domain.LedgerRepository

	Locks  *fundlock.Registry
	Recalc Recalculator

	logger *zap.Logger
}

// NewService creates a new subscription Service instance
func NewService(
	fundRepo domain.FundRepository,
	holdingRepo domain.HoldingRepository,
	ledgerRepo domain.LedgerRepository,
	locks *fundlock.Registry,
	recalc Recalculator,
	logger *zap.Logger,
) *Service {
	return &Service{
		FundRepo:    fundRepo,
		HoldingRepo: holdingRepo,
		LedgerRepo:  ledgerRepo,
		Locks:       locks,
		Recalc:      recalc,
		logger:      logger,
	}
}

// Subscribe processes an investor's cash contribution into fund units.
// Logic:
//  1. Validate input (positive amount, resolvable fund with nav > 0)
//  2. units = round(amount / navPerUnit, 3 decimals); zero units for a
//     nonzero amount is rejected, never silently accepted
//  3. In order: append entry + cash flow, merge the holding
//     (weighted-average cost), increment outstanding units - atomically
//  4. Backdated: an effectiveDate earlier than the fund's most recent
//     transaction invalidates everything computed after it, so the entry is
//     routed through the recalculation engine instead
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: subscription amount must be positive", domain.ErrValidation)
	}
	if input.AccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: account ID is required", domain.ErrValidation)
	}

	release, err := s.Locks.Acquire(input.FundID)
	if err != nil {
		return nil, err
	}
	locked := true
	defer func() {
		if locked {
			release()
		}
	}()

	fund, err := s.FundRepo.GetByID(ctx, input.FundID)
	if err != nil {
		return nil, err
	}
	if !fund.FundMode {
		return nil, domain.ErrNotAFund
	}
	if fund.NavPerUnit.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: fund nav per unit is not seeded", domain.ErrValidation)
	}

	units := domain.RoundUnits(input.Amount.Div(fund.NavPerUnit))
	if units.IsZero() {
		return nil, fmt.Errorf("%w: amount %s at nav %s", domain.ErrInsufficientPrecision,
			input.Amount.String(), fund.NavPerUnit.String())
	}

	now := time.Now()
	effectiveDate := input.EffectiveDate
	if effectiveDate.IsZero() {
		effectiveDate = now
	}

	entry := &domain.FundUnitTransaction{
		ID:            uuid.New(),
		AccountID:     input.AccountID,
		FundID:        input.FundID,
		HoldingType:   domain.HoldingTypeSubscribe,
		Units:         units,
		NavPerUnit:    fund.NavPerUnit,
		Amount:        domain.RoundAmount(input.Amount),
		EffectiveDate: effectiveDate,
		CreatedAt:     now,
		CashFlowID:    uuid.New(),
	}

	flow := &domain.CashFlow{
		ID:            entry.CashFlowID,
		FundID:        input.FundID,
		FlowDate:      effectiveDate,
		Amount:        entry.Amount, // inflow: positive
		Description:   input.Description,
		FundingSource: input.FundingSource,
	}

	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	latest, err := s.LedgerRepo.LatestEffectiveDate(ctx, input.FundID)
	if err != nil {
		return nil, err
	}

	if latest != nil && effectiveDate.Before(*latest) {
		// Out-of-order history: hand over to the recalculation engine, which
		// takes the fund's recalc slot itself
		release()
		locked = false
		return s.subscribeBackdated(ctx, input.FundID, input.AccountID, entry, flow)
	}

	holding, err := s.HoldingRepo.GetByAccountAndFund(ctx, input.AccountID, input.FundID)
	if err != nil {
		if !errors.Is(err, domain.ErrHoldingNotFound) {
			return nil, err
		}
		// First subscription for this account in this fund
		holding = &domain.InvestorHolding{
			ID:             uuid.New(),
			AccountID:      input.AccountID,
			FundID:         input.FundID,
			TotalUnits:     decimal.Zero,
			AvgCostPerUnit: decimal.Zero,
		}
	}

	// Run the entry through the same per-transaction logic the replay uses
	state := projector.NewState()
	state.OutstandingUnits = fund.TotalOutstandingUnits
	state.Holdings[input.AccountID] = &projector.HoldingState{
		AccountID:      input.AccountID,
		TotalUnits:     holding.TotalUnits,
		AvgCostPerUnit: holding.AvgCostPerUnit,
	}
	if err := state.Apply(entry); err != nil {
		return nil, err
	}

	holding.TotalUnits = state.Holdings[input.AccountID].TotalUnits
	holding.AvgCostPerUnit = state.Holdings[input.AccountID].AvgCostPerUnit
	fund.TotalOutstandingUnits = state.OutstandingUnits

	if err := s.LedgerRepo.AppendEntry(ctx, entry, flow, holding, fund); err != nil {
		return nil, err
	}

	s.logger.Info("subscription appended",
		zap.String("fund_id", fund.ID.String()),
		zap.String("account_id", input.AccountID.String()),
		zap.String("units", units.String()),
		zap.String("amount", entry.Amount.String()))

	return &SubscribeResult{Transaction: entry, Holding: holding}, nil
}

func (s *Service) subscribeBackdated(ctx context.Context, fundID, accountID uuid.UUID, entry *domain.FundUnitTransaction, flow *domain.CashFlow) (*SubscribeResult, error) {
	_, holdings, err := s.Recalc.ApplyChange(ctx, fundID, domain.LedgerChange{
		Insert:     entry,
		InsertFlow: flow,
	})
	if err != nil {
		return nil, err
	}

	for _, h := range holdings {
		if h.AccountID == accountID {
			return &SubscribeResult{Transaction: entry, Holding: h}, nil
		}
	}

	return nil, fmt.Errorf("holding for account %s missing after replay", accountID)
}
