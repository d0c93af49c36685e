package redemption

import (
	"context"
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
// for backdated redemptions.
type Recalculator interface {
	ApplyChange(ctx context.Context, fundID uuid.UUID, change domain.LedgerChange) (*domain.Fund, []*domain.InvestorHolding, error)
}

// RedeemInput represents the input for a redemption
type RedeemInput struct {
	AccountID     uuid.UUID
	FundID        uuid.UUID
	Units         decimal.Decimal
	EffectiveDate time.Time // zero means now
	Description   string
	FundingSource string
}

// RedeemResult represents the outcome of a redemption.
// RealizedPnL is units x (nav - avgCost): reported to the caller but not
// stored on the holding, which keeps its average cost basis unchanged.
type RedeemResult struct {
	Transaction *domain.FundUnitTransaction
	Holding     *domain.InvestorHolding
	RealizedPnL decimal.Decimal
}

// Service handles redemption processing: validating a units-out request
// against the holding, pricing it at the fund's stored NAV, and appending
// it to the unit ledger as one atomic unit of work.
type Service struct {
	FundRepo    domain.FundRepository
	HoldingRepo domain.HoldingRepository
	LedgerRepo  domain.LedgerRepository

	Locks  *fundlock.Registry
	Recalc Recalculator

	logger *zap.Logger
}

// NewService creates a new redemption Service instance
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

// Redeem processes an investor selling units back to the fund.
// Logic:
//  1. Validate input (positive units, resolvable fund and holding)
//  2. The holding must own at least the requested units - a shortfall is
//     ErrInsufficientUnits, never a silently substituted partial redemption
//  3. amount = round(units x navPerUnit, 2 decimals)
//  4. In order: append entry + negative cash flow, decrement the holding
//     (average cost unchanged), decrement outstanding units - atomically
//  5. Backdated effectiveDate routes through the recalculation engine
func (s *Service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	if input.Units.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: redemption units must be positive", domain.ErrValidation)
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

	holding, err := s.HoldingRepo.GetByAccountAndFund(ctx, input.AccountID, input.FundID)
	if err != nil {
		return nil, err
	}

	units := domain.RoundUnits(input.Units)
	if units.GreaterThan(holding.TotalUnits) {
		return nil, fmt.Errorf("%w: requested %s, holding %s", domain.ErrInsufficientUnits,
			units.String(), holding.TotalUnits.String())
	}

	now := time.Now()
	effectiveDate := input.EffectiveDate
	if effectiveDate.IsZero() {
		effectiveDate = now
	}

	amount := domain.RoundAmount(units.Mul(fund.NavPerUnit))

	entry := &domain.FundUnitTransaction{
		ID:            uuid.New(),
		AccountID:     input.AccountID,
		FundID:        input.FundID,
		HoldingType:   domain.HoldingTypeRedeem,
		Units:         units,
		NavPerUnit:    fund.NavPerUnit,
		Amount:        amount,
		EffectiveDate: effectiveDate,
		CreatedAt:     now,
		CashFlowID:    uuid.New(),
	}

	flow := &domain.CashFlow{
		ID:            entry.CashFlowID,
		FundID:        input.FundID,
		FlowDate:      effectiveDate,
		Amount:        amount.Neg(), // outflow: negative
		Description:   input.Description,
		FundingSource: input.FundingSource,
	}

	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Realized gain/loss on the redeemed portion, computed against the cost
	// basis before the holding is touched
	realized := projector.RealizedPnL(units, fund.NavPerUnit, holding.AvgCostPerUnit)

	latest, err := s.LedgerRepo.LatestEffectiveDate(ctx, input.FundID)
	if err != nil {
		return nil, err
	}

	if latest != nil && effectiveDate.Before(*latest) {
		release()
		locked = false
		return s.redeemBackdated(ctx, input.FundID, input.AccountID, entry, flow, realized)
	}

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
	// AvgCostPerUnit deliberately untouched
	fund.TotalOutstandingUnits = state.OutstandingUnits

	if err := s.LedgerRepo.AppendEntry(ctx, entry, flow, holding, fund); err != nil {
		return nil, err
	}

	s.logger.Info("redemption appended",
		zap.String("fund_id", fund.ID.String()),
		zap.String("account_id", input.AccountID.String()),
		zap.String("units", units.String()),
		zap.String("amount", amount.String()),
		zap.String("realized_pnl", realized.String()))

	return &RedeemResult{Transaction: entry, Holding: holding, RealizedPnL: realized}, nil
}

func (s *Service) redeemBackdated(ctx context.Context, fundID, accountID uuid.UUID, entry *domain.FundUnitTransaction, flow *domain.CashFlow, realized decimal.Decimal) (*RedeemResult, error) {
	_, holdings, err := s.Recalc.ApplyChange(ctx, fundID, domain.LedgerChange{
		Insert:     entry,
		InsertFlow: flow,
	})
	if err != nil {
		return nil, err
	}

	for _, h := range holdings {
		if h.AccountID == accountID {
			return &RedeemResult{Transaction: entry, Holding: h, RealizedPnL: realized}, nil
		}
	}

	return nil, fmt.Errorf("holding for account %s missing after replay", accountID)
}
