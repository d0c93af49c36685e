package holdings

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// HoldingSummary is a holding with its derived valuation fields at the
// fund's last computed NAV. Reads tolerate a momentarily stale NAV; they
// never take the fund's write lock.
type HoldingSummary struct {
	Holding         *domain.InvestorHolding
	NavPerUnit      decimal.Decimal
	TotalInvestment decimal.Decimal
	CurrentValue    decimal.Decimal
	UnrealizedPnL   decimal.Decimal
}

// HoldingDetail is the full view of one holding: the summary plus the
// account's ledger entries in replay order.
type HoldingDetail struct {
	Summary      HoldingSummary
	Transactions []*domain.FundUnitTransaction
}

// Service handles holding queries
type Service struct {
	FundRepo    domain.FundRepository
	HoldingRepo domain.HoldingRepository
	LedgerRepo  domain.LedgerRepository
}

// NewService creates a new holdings Service instance
func NewService(fundRepo domain.FundRepository, holdingRepo domain.HoldingRepository, ledgerRepo domain.LedgerRepository) *Service {
	return &Service{
		FundRepo:    fundRepo,
		HoldingRepo: holdingRepo,
		LedgerRepo:  ledgerRepo,
	}
}

// GetHoldingDetail returns one holding's summary and its transactions.
func (s *Service) GetHoldingDetail(ctx context.Context, holdingID uuid.UUID) (*HoldingDetail, error) {
	holding, err := s.HoldingRepo.GetByID(ctx, holdingID)
	if err != nil {
		return nil, err
	}

	fund, err := s.FundRepo.GetByID(ctx, holding.FundID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.LedgerRepo.ListByAccountAndFund(ctx, holding.AccountID, holding.FundID)
	if err != nil {
		return nil, err
	}

	return &HoldingDetail{
		Summary:      summarize(holding, fund.NavPerUnit),
		Transactions: transactions,
	}, nil
}

// ListFundHoldings returns every holding of a fund, closed ones included,
// with derived fields at the fund's last computed NAV.
func (s *Service) ListFundHoldings(ctx context.Context, fundID uuid.UUID) ([]HoldingSummary, error) {
	fund, err := s.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if !fund.FundMode {
		return nil, domain.ErrNotAFund
	}

	holdings, err := s.HoldingRepo.ListByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}

	summaries := make([]HoldingSummary, 0, len(holdings))
	for _, holding := range holdings {
		summaries = append(summaries, summarize(holding, fund.NavPerUnit))
	}

	return summaries, nil
}

func summarize(holding *domain.InvestorHolding, navPerUnit decimal.Decimal) HoldingSummary {
	return HoldingSummary{
		Holding:         holding,
		NavPerUnit:      navPerUnit,
		TotalInvestment: holding.TotalInvestment(),
		CurrentValue:    holding.CurrentValue(navPerUnit),
		UnrealizedPnL:   holding.UnrealizedPnL(navPerUnit),
	}
}
