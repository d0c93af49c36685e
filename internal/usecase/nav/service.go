package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// Result is one NAV computation: the per-unit value and the valuation instant.
type Result struct {
	NavPerUnit decimal.Decimal
	AsOf       time.Time
}

// Service derives NAV per unit from the valuation source and the fund's
// outstanding units. NAV is persisted only when explicitly invoked (manual
// recalculate or after a recalculation pass), never on every price tick, so
// subscription economics stay deterministic per transaction.
type Service struct {
	FundRepo  domain.FundRepository
	Valuation domain.ValuationSource

	// InitialSeedNav is the NAV used while the fund has no outstanding units.
	InitialSeedNav decimal.Decimal

	logger *zap.Logger
}

// NewService creates a new NAV Service instance
func NewService(fundRepo domain.FundRepository, valuation domain.ValuationSource, initialSeedNav decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		FundRepo:       fundRepo,
		Valuation:      valuation,
		InitialSeedNav: initialSeedNav,
		logger:         logger,
	}
}

// ComputeNav recomputes and persists the fund's NAV per unit.
// Logic:
//  1. Resolve the fund and require fund mode
//  2. Ask the valuation source for the total fund value "now"
//  3. navPerUnit = totalValue / outstandingUnits, or the seed NAV while no
//     units are outstanding
//  4. Persist navPerUnit and lastNavDate
//
// A valuation failure (including timeout) surfaces as ErrInvalidValuation
// and the previously stored NAV is left intact - nothing is persisted.
func (s *Service) ComputeNav(ctx context.Context, fundID uuid.UUID) (*Result, error) {
	fund, err := s.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}

	if !fund.FundMode {
		return nil, domain.ErrNotAFund
	}

	result, err := s.Preview(ctx, fund, nil)
	if err != nil {
		return nil, err
	}

	if err := s.FundRepo.UpdateNav(ctx, fund.ID, result.NavPerUnit, result.AsOf); err != nil {
		return nil, fmt.Errorf("failed to persist nav: %w", err)
	}

	s.logger.Info("nav recomputed",
		zap.String("fund_id", fund.ID.String()),
		zap.String("nav_per_unit", result.NavPerUnit.String()),
		zap.Time("as_of", result.AsOf))

	return result, nil
}

// Preview derives the NAV for a fund without persisting it. asOf selects a
// historical valuation point; nil means "now". Used by the recalculation
// engine to refresh the fund's current NAV inside its own commit batch.
func (s *Service) Preview(ctx context.Context, fund *domain.Fund, asOf *time.Time) (*Result, error) {
	totalValue, err := s.Valuation.GetFundTotalValue(ctx, fund.ID, asOf)
	if err != nil {
		// Taxonomy contract: every valuation failure, timeouts included,
		// surfaces as ErrInvalidValuation and the caller keeps the prior NAV
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidValuation, err)
	}

	instant := time.Now()
	if asOf != nil {
		instant = *asOf
	}

	if fund.TotalOutstandingUnits.IsZero() {
		return &Result{NavPerUnit: domain.RoundNav(s.InitialSeedNav), AsOf: instant}, nil
	}

	navPerUnit := domain.RoundNav(totalValue.Div(fund.TotalOutstandingUnits))

	return &Result{NavPerUnit: navPerUnit, AsOf: instant}, nil
}
