package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
	"github.com/joaopcs/fundledger-backend/internal/fundlock"
)

// MockFundRepository is a mock implementation of FundRepository for testing
type MockFundRepository struct {
	mock.Mock
}

func (m *MockFundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fund), args.Error(1)
}

func (m *MockFundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	args := m.Called(ctx, fund)
	return args.Error(0)
}

func (m *MockFundRepository) Update(ctx context.Context, fund *domain.Fund) error {
	args := m.Called(ctx, fund)
	return args.Error(0)
}

func (m *MockFundRepository) UpdateNav(ctx context.Context, fundID uuid.UUID, navPerUnit decimal.Decimal, asOf time.Time) error {
	args := m.Called(ctx, fundID, navPerUnit, asOf)
	return args.Error(0)
}

// MockHoldingRepository is a mock implementation of HoldingRepository for testing
type MockHoldingRepository struct {
	mock.Mock
}

func (m *MockHoldingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.InvestorHolding, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InvestorHolding), args.Error(1)
}

func (m *MockHoldingRepository) GetByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) (*domain.InvestorHolding, error) {
	args := m.Called(ctx, accountID, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InvestorHolding), args.Error(1)
}

func (m *MockHoldingRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.InvestorHolding, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InvestorHolding), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository for testing
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.FundUnitTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundUnitTransaction), args.Error(1)
}

func (m *MockLedgerRepository) GetCashFlowByID(ctx context.Context, id uuid.UUID) (*domain.CashFlow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashFlow), args.Error(1)
}

func (m *MockLedgerRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.FundUnitTransaction, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FundUnitTransaction), args.Error(1)
}

func (m *MockLedgerRepository) ListByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) ([]*domain.FundUnitTransaction, error) {
	args := m.Called(ctx, accountID, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FundUnitTransaction), args.Error(1)
}

func (m *MockLedgerRepository) LatestEffectiveDate(ctx context.Context, fundID uuid.UUID) (*time.Time, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockLedgerRepository) AppendEntry(ctx context.Context, entry *domain.FundUnitTransaction, flow *domain.CashFlow, holding *domain.InvestorHolding, fund *domain.Fund) error {
	args := m.Called(ctx, entry, flow, holding, fund)
	return args.Error(0)
}

func (m *MockLedgerRepository) CommitReplay(ctx context.Context, batch *domain.ReplayBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockLedgerRepository) PurgeFund(ctx context.Context, fund *domain.Fund) (*domain.PurgeResult, error) {
	args := m.Called(ctx, fund)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PurgeResult), args.Error(1)
}

// MockRecalculator is a mock implementation of the Recalculator slice
type MockRecalculator struct {
	mock.Mock
}

func (m *MockRecalculator) ApplyChange(ctx context.Context, fundID uuid.UUID, change domain.LedgerChange) (*domain.Fund, []*domain.InvestorHolding, error) {
	args := m.Called(ctx, fundID, change)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.Fund), args.Get(1).([]*domain.InvestorHolding), args.Error(2)
}

func newTestService() (*Service, *MockFundRepository, *MockHoldingRepository, *MockLedgerRepository, *MockRecalculator, *fundlock.Registry) {
	fundRepo := new(MockFundRepository)
	holdingRepo := new(MockHoldingRepository)
	ledgerRepo := new(MockLedgerRepository)
	recalc := new(MockRecalculator)
	locks := fundlock.NewRegistry()
	service := NewService(fundRepo, holdingRepo, ledgerRepo, locks, recalc, zap.NewNop())
	return service, fundRepo, holdingRepo, ledgerRepo, recalc, locks
}

func TestSubscribe_FirstInvestorAtSeedNav(t *testing.T) {
	ctx := context.Background()
	service, fundRepo, holdingRepo, ledgerRepo, _, _ := newTestService()

	// Setup: fund at nav 10,000 with no outstanding units yet
	fundID := uuid.New()
	accountID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		NavPerUnit:            decimal.RequireFromString("10000"),
		TotalOutstandingUnits: decimal.Zero,
	}

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	ledgerRepo.On("LatestEffectiveDate", ctx, fundID).Return(nil, nil)
	holdingRepo.On("GetByAccountAndFund", ctx, accountID, fundID).Return(nil, domain.ErrHoldingNotFound)

	ledgerRepo.On("AppendEntry", ctx,
		mock.MatchedBy(func(entry *domain.FundUnitTransaction) bool {
			return entry.HoldingType == domain.HoldingTypeSubscribe &&
				entry.Units.Equal(decimal.RequireFromString("100")) &&
				entry.NavPerUnit.Equal(decimal.RequireFromString("10000")) &&
				entry.Amount.Equal(decimal.RequireFromString("1000000"))
		}),
		mock.MatchedBy(func(flow *domain.CashFlow) bool {
			return flow.Amount.Equal(decimal.RequireFromString("1000000")) // inflow is positive
		}),
		mock.MatchedBy(func(holding *domain.InvestorHolding) bool {
			return holding.TotalUnits.Equal(decimal.RequireFromString("100")) &&
				holding.AvgCostPerUnit.Equal(decimal.RequireFromString("10000"))
		}),
		mock.MatchedBy(func(f *domain.Fund) bool {
			return f.TotalOutstandingUnits.Equal(decimal.RequireFromString("100"))
		}),
	).Return(nil)

	// Execute: subscribe 1,000,000 at nav 10,000
	result, err := service.Subscribe(ctx, SubscribeInput{
		AccountID: accountID,
		FundID:    fundID,
		Amount:    decimal.RequireFromString("1000000"),
	})

	// Assert: 100.000 units at avg cost 10,000
	require.NoError(t, err)
	assert.Equal(t, "100", result.Transaction.Units.String())
	assert.Equal(t, "100", result.Holding.TotalUnits.String())
	assert.Equal(t, "10000", result.Holding.AvgCostPerUnit.String())
	ledgerRepo.AssertExpectations(t)
}

func TestSubscribe_SecondInvestorRoundsUnits(t *testing.T) {
	ctx := context.Background()
	service, fundRepo, holdingRepo, ledgerRepo, _, _ := newTestService()

	// Setup: fund at nav 12,000 with 60 units outstanding
	fundID := uuid.New()
	accountID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		NavPerUnit:            decimal.RequireFromString("12000"),
		TotalOutstandingUnits: decimal.RequireFromString("60"),
	}

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	ledgerRepo.On("LatestEffectiveDate", ctx, fundID).Return(nil, nil)
	holdingRepo.On("GetByAccountAndFund", ctx, accountID, fundID).Return(nil, domain.ErrHoldingNotFound)

	ledgerRepo.On("AppendEntry", ctx, mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(f *domain.Fund) bool {
			// 60 + 41.667
			return f.TotalOutstandingUnits.Equal(decimal.RequireFromString("101.667"))
		}),
	).Return(nil)

	// Execute: subscribe 500,000 at nav 12,000
	result, err := service.Subscribe(ctx, SubscribeInput{
		AccountID: accountID,
		FundID:    fundID,
		Amount:    decimal.RequireFromString("500000"),
	})

	// Assert: 500,000 / 12,000 rounds to 41.667 units
	require.NoError(t, err)
	assert.Equal(t, "41.667", result.Transaction.Units.String())
	assert.Equal(t, "41.667", result.Holding.TotalUnits.String())
	ledgerRepo.AssertExpectations(t)
}

func TestSubscribe_RejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	service, _, _, _, _, _ := newTestService()

	_, err := service.Subscribe(ctx, SubscribeInput{
		AccountID: uuid.New(),
		FundID:    uuid.New(),
		Amount:    decimal.Zero,
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubscribe_RejectsAmountRoundingToZeroUnits(t *testing.T) {
	ctx := context.Background()
	service, fundRepo, _, _, _, _ := newTestService()

	fundID := uuid.New()
	fund := &domain.Fund{
		ID:           fundID,
		Name:         "Family Fund",
		BaseCurrency: "EUR",
		FundMode:     true,
		NavPerUnit:   decimal.RequireFromString("10000"),
	}
	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)

	// 1 / 10,000 = 0.0001 -> rounds to 0.000 units
	_, err := service.Subscribe(ctx, SubscribeInput{
		AccountID: uuid.New(),
		FundID:    fundID,
		Amount:    decimal.RequireFromString("1"),
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientPrecision)
}

func TestSubscribe_RejectsPortfolioWithoutFundMode(t *testing.T) {
	ctx := context.Background()
	service, fundRepo, _, _, _, _ := newTestService()

	fundID := uuid.New()
	fundRepo.On("GetByID", ctx, fundID).Return(&domain.Fund{
		ID:           fundID,
		Name:         "Plain Portfolio",
		BaseCurrency: "EUR",
		FundMode:     false,
	}, nil)

	_, err := service.Subscribe(ctx, SubscribeInput{
		AccountID: uuid.New(),
		FundID:    fundID,
		Amount:    decimal.RequireFromString("1000"),
	})

	assert.ErrorIs(t, err, domain.ErrNotAFund)
}

func TestSubscribe_BackdatedRoutesThroughRecalculation(t *testing.T) {
	ctx := context.Background()
	service, fundRepo, _, ledgerRepo, recalc, _ := newTestService()

	fundID := uuid.New()
	accountID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		NavPerUnit:            decimal.RequireFromString("12000"),
		TotalOutstandingUnits: decimal.RequireFromString("100"),
	}

	// Setup: the ledger head is later than the requested effective date
	head := time.Now()
	backdated := head.AddDate(0, 0, -10)

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	ledgerRepo.On("LatestEffectiveDate", ctx, fundID).Return(&head, nil)

	rebuilt := []*domain.InvestorHolding{
		{
			ID:             uuid.New(),
			AccountID:      accountID,
			FundID:         fundID,
			TotalUnits:     decimal.RequireFromString("41.667"),
			AvgCostPerUnit: decimal.RequireFromString("12000"),
		},
	}
	recalc.On("ApplyChange", ctx, fundID, mock.MatchedBy(func(change domain.LedgerChange) bool {
		return change.Insert != nil && change.InsertFlow != nil &&
			change.Insert.EffectiveDate.Equal(backdated)
	})).Return(fund, rebuilt, nil)

	// Execute
	result, err := service.Subscribe(ctx, SubscribeInput{
		AccountID:     accountID,
		FundID:        fundID,
		Amount:        decimal.RequireFromString("500000"),
		EffectiveDate: backdated,
	})

	// Assert: the entry went through the replay path, never the append path
	require.NoError(t, err)
	assert.Equal(t, "41.667", result.Holding.TotalUnits.String())
	ledgerRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	recalc.AssertExpectations(t)
}

func TestSubscribe_FailsFastDuringRecalculation(t *testing.T) {
	ctx := context.Background()
	service, _, _, _, _, locks := newTestService()

	fundID := uuid.New()
	done, err := locks.BeginRecalc(fundID)
	require.NoError(t, err)
	defer done()

	_, err = service.Subscribe(ctx, SubscribeInput{
		AccountID: uuid.New(),
		FundID:    fundID,
		Amount:    decimal.RequireFromString("1000"),
	})

	assert.ErrorIs(t, err, domain.ErrConcurrentRecalculation)
}
