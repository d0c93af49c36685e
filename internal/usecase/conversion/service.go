package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
	"github.com/joaopcs/fundledger-backend/internal/fundlock"
)

// Service handles the one-time structural transitions between a plain
// portfolio and a fund: enabling fund mode with a seeded NAV, and the
// irreversible teardown back to a portfolio.
type Service struct {
	FundRepo   domain.FundRepository
	LedgerRepo domain.LedgerRepository
	Valuation  domain.ValuationSource

	// BaselineUnits divides the seeding valuation to produce the initial NAV
	// (default 1).
	BaselineUnits decimal.Decimal
	// DefaultSeedNav is used when the portfolio values to zero at conversion
	// time, so the first subscription still has a positive NAV to price at.
	DefaultSeedNav decimal.Decimal

	Locks *fundlock.Registry

	logger *zap.Logger
}

// NewService creates a new conversion Service instance
func NewService(
	fundRepo domain.FundRepository,
	ledgerRepo domain.LedgerRepository,
	valuation domain.ValuationSource,
	baselineUnits decimal.Decimal,
	defaultSeedNav decimal.Decimal,
	locks *fundlock.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		FundRepo:       fundRepo,
		LedgerRepo:     ledgerRepo,
		Valuation:      valuation,
		BaselineUnits:  baselineUnits,
		DefaultSeedNav: defaultSeedNav,
		Locks:          locks,
		logger:         logger,
	}
}

// ConvertToFund enables fund mode on a plain portfolio.
// Logic:
//  1. The portfolio must not already be a fund
//  2. Seed navPerUnit = valuation at snapshotDate (or now) / BaselineUnits;
//     a zero valuation falls back to DefaultSeedNav
//  3. Outstanding units start at zero - units only ever come from
//     subscriptions recorded in the ledger
func (s *Service) ConvertToFund(ctx context.Context, portfolioID uuid.UUID, snapshotDate *time.Time) (*domain.Fund, error) {
	release, err := s.Locks.Acquire(portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	fund, err := s.FundRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if fund.FundMode {
		return nil, fmt.Errorf("%w: portfolio %s is already a fund", domain.ErrValidation, portfolioID)
	}

	totalValue, err := s.Valuation.GetFundTotalValue(ctx, portfolioID, snapshotDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidValuation, err)
	}

	seedNav := s.DefaultSeedNav
	if totalValue.GreaterThan(decimal.Zero) {
		seedNav = domain.RoundNav(totalValue.Div(s.BaselineUnits))
	}

	now := time.Now()
	if snapshotDate != nil {
		now = *snapshotDate
	}

	fund.FundMode = true
	fund.NavPerUnit = seedNav
	fund.TotalOutstandingUnits = decimal.Zero
	fund.LastNavDate = &now

	if err := fund.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.FundRepo.Update(ctx, fund); err != nil {
		return nil, fmt.Errorf("failed to enable fund mode: %w", err)
	}

	s.logger.Info("portfolio converted to fund",
		zap.String("fund_id", fund.ID.String()),
		zap.String("seed_nav", seedNav.String()))

	return fund, nil
}

// ConvertToPortfolio is the irreversible teardown of a fund back to a plain
// portfolio: every investor holding, every unit transaction and every
// associated cash flow is deleted in one transaction, the fund counters are
// reset to zero, and the portfolio's cash balance is recomputed from the
// remaining non-fund cash flows.
//
// The caller must pass confirm=true; the component refuses to run without
// an explicit confirmation flag.
func (s *Service) ConvertToPortfolio(ctx context.Context, portfolioID uuid.UUID, confirm bool) (*domain.Fund, error) {
	if !confirm {
		return nil, domain.ErrConfirmationRequired
	}

	release, err := s.Locks.Acquire(portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	fund, err := s.FundRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if !fund.FundMode {
		return nil, domain.ErrNotAFund
	}

	fund.FundMode = false
	fund.NavPerUnit = decimal.Zero
	fund.TotalOutstandingUnits = decimal.Zero
	fund.LastNavDate = nil

	result, err := s.LedgerRepo.PurgeFund(ctx, fund)
	if err != nil {
		return nil, fmt.Errorf("failed to tear down fund: %w", err)
	}

	s.logger.Warn("fund torn down to portfolio",
		zap.String("portfolio_id", fund.ID.String()),
		zap.Int("holdings_deleted", result.HoldingsDeleted),
		zap.Int("transactions_deleted", result.TransactionsDeleted),
		zap.Int("cash_flows_deleted", result.CashFlowsDeleted),
		zap.String("remaining_cash", result.RemainingCash.String()))

	return fund, nil
}
