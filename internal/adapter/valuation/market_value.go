// Package valuation implements the valuation-source collaborator over the
// fund's recorded market value history plus its cash balance. The ledger
// core consumes it through the domain.ValuationSource interface and treats
// every failure here as ErrInvalidValuation.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// MarketValueSource derives the total fund value as the latest recorded
// market value of the fund's asset holdings plus the fund's cash balance.
type MarketValueSource struct {
	FundRepo        domain.FundRepository
	MarketValueRepo domain.MarketValueRepository
}

// NewMarketValueSource creates a new MarketValueSource instance
func NewMarketValueSource(fundRepo domain.FundRepository, marketValueRepo domain.MarketValueRepository) *MarketValueSource {
	return &MarketValueSource{
		FundRepo:        fundRepo,
		MarketValueRepo: marketValueRepo,
	}
}

// GetFundTotalValue returns asset market value + cash at asOf (nil = now).
// A fund with no valuation history but a cash balance values at cash alone;
// with neither, the source cannot supply a value.
func (s *MarketValueSource) GetFundTotalValue(ctx context.Context, fundID uuid.UUID, asOf *time.Time) (decimal.Decimal, error) {
	fund, err := s.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return decimal.Zero, err
	}

	var point *domain.FundValuationPoint
	if asOf == nil {
		point, err = s.MarketValueRepo.GetLatest(ctx, fundID)
	} else {
		point, err = s.MarketValueRepo.GetLatestAsOf(ctx, fundID, *asOf)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidValuation) && fund.CashBalance.GreaterThan(decimal.Zero) {
			// No asset valuations recorded yet: the fund is all cash
			return fund.CashBalance, nil
		}
		return decimal.Zero, err
	}

	return point.MarketValue.Add(fund.CashBalance), nil
}

// RecordValuation appends a new market value point for a fund.
// Logic: validate the value is positive, verify the fund exists, insert a
// new history row. Recording a point does NOT touch the fund's NAV - NAV
// only moves on an explicit recalculate.
func (s *MarketValueSource) RecordValuation(ctx context.Context, fundID uuid.UUID, marketValue decimal.Decimal, date time.Time) (*domain.FundValuationPoint, error) {
	if marketValue.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: market value must be positive", domain.ErrValidation)
	}

	if _, err := s.FundRepo.GetByID(ctx, fundID); err != nil {
		return nil, err
	}

	if date.IsZero() {
		date = time.Now()
	}

	point := &domain.FundValuationPoint{
		ID:          uuid.New(),
		FundID:      fundID,
		Date:        date,
		MarketValue: marketValue,
	}

	if err := s.MarketValueRepo.Add(ctx, point); err != nil {
		return nil, err
	}

	return point, nil
}
