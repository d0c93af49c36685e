package nav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/domain"
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

// MockValuationSource is a mock implementation of ValuationSource for testing
type MockValuationSource struct {
	mock.Mock
}

func (m *MockValuationSource) GetFundTotalValue(ctx context.Context, fundID uuid.UUID, asOf *time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, fundID, asOf)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestComputeNav_DividesTotalValueByOutstandingUnits(t *testing.T) {
	ctx := context.Background()
	fundRepo := new(MockFundRepository)
	valuation := new(MockValuationSource)
	service := NewService(fundRepo, valuation, decimal.RequireFromString("100"), zap.NewNop())

	// Setup: 100 outstanding units, total value 1,200,000
	fundID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		NavPerUnit:            decimal.RequireFromString("10000"),
		TotalOutstandingUnits: decimal.RequireFromString("100"),
	}

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	valuation.On("GetFundTotalValue", ctx, fundID, (*time.Time)(nil)).
		Return(decimal.RequireFromString("1200000"), nil)
	fundRepo.On("UpdateNav", ctx, fundID,
		mock.MatchedBy(func(nav decimal.Decimal) bool {
			return nav.Equal(decimal.RequireFromString("12000"))
		}),
		mock.AnythingOfType("time.Time"),
	).Return(nil)

	// Execute
	result, err := service.ComputeNav(ctx, fundID)

	// Assert: nav = 1,200,000 / 100 = 12,000, persisted
	require.NoError(t, err)
	assert.Equal(t, "12000", result.NavPerUnit.String())
	fundRepo.AssertExpectations(t)
}

func TestComputeNav_SeedNavWhileNoUnitsOutstanding(t *testing.T) {
	ctx := context.Background()
	fundRepo := new(MockFundRepository)
	valuation := new(MockValuationSource)
	seed := decimal.RequireFromString("100")
	service := NewService(fundRepo, valuation, seed, zap.NewNop())

	fundID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		TotalOutstandingUnits: decimal.Zero,
	}

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	valuation.On("GetFundTotalValue", ctx, fundID, (*time.Time)(nil)).
		Return(decimal.RequireFromString("50000"), nil)
	fundRepo.On("UpdateNav", ctx, fundID,
		mock.MatchedBy(func(nav decimal.Decimal) bool { return nav.Equal(seed) }),
		mock.AnythingOfType("time.Time"),
	).Return(nil)

	result, err := service.ComputeNav(ctx, fundID)

	require.NoError(t, err)
	assert.True(t, result.NavPerUnit.Equal(seed))
}

func TestComputeNav_ValuationFailureRetainsPreviousNav(t *testing.T) {
	ctx := context.Background()
	fundRepo := new(MockFundRepository)
	valuation := new(MockValuationSource)
	service := NewService(fundRepo, valuation, decimal.RequireFromString("100"), zap.NewNop())

	fundID := uuid.New()
	fund := &domain.Fund{
		ID:                    fundID,
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		NavPerUnit:            decimal.RequireFromString("10000"),
		TotalOutstandingUnits: decimal.RequireFromString("100"),
	}

	fundRepo.On("GetByID", ctx, fundID).Return(fund, nil)
	valuation.On("GetFundTotalValue", ctx, fundID, (*time.Time)(nil)).
		Return(decimal.Zero, errors.New("source timeout"))

	// Execute
	_, err := service.ComputeNav(ctx, fundID)

	// Assert: taxonomy error, nothing persisted, stored nav untouched
	assert.ErrorIs(t, err, domain.ErrInvalidValuation)
	fundRepo.AssertNotCalled(t, "UpdateNav", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "10000", fund.NavPerUnit.String())
}

func TestComputeNav_RejectsPortfolioWithoutFundMode(t *testing.T) {
	ctx := context.Background()
	fundRepo := new(MockFundRepository)
	valuation := new(MockValuationSource)
	service := NewService(fundRepo, valuation, decimal.RequireFromString("100"), zap.NewNop())

	fundID := uuid.New()
	fundRepo.On("GetByID", ctx, fundID).Return(&domain.Fund{
		ID:           fundID,
		Name:         "Plain Portfolio",
		BaseCurrency: "EUR",
		FundMode:     false,
	}, nil)

	_, err := service.ComputeNav(ctx, fundID)

	assert.ErrorIs(t, err, domain.ErrNotAFund)
}

func TestPreview_HistoricalAsOfIsPassedThrough(t *testing.T) {
	ctx := context.Background()
	fundRepo := new(MockFundRepository)
	valuation := new(MockValuationSource)
	service := NewService(fundRepo, valuation, decimal.RequireFromString("100"), zap.NewNop())

	fund := &domain.Fund{
		ID:                    uuid.New(),
		Name:                  "Family Fund",
		BaseCurrency:          "EUR",
		FundMode:              true,
		TotalOutstandingUnits: decimal.RequireFromString("100"),
	}
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	valuation.On("GetFundTotalValue", ctx, fund.ID, &asOf).
		Return(decimal.RequireFromString("1000000"), nil)

	result, err := service.Preview(ctx, fund, &asOf)

	require.NoError(t, err)
	assert.Equal(t, "10000", result.NavPerUnit.String())
	assert.True(t, result.AsOf.Equal(asOf))
}
