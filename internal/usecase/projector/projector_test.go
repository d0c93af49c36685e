package projector

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

func entry(accountID, fundID uuid.UUID, holdingType domain.HoldingType, units, nav, amount string, day int) *domain.FundUnitTransaction {
	return &domain.FundUnitTransaction{
		ID:            uuid.New(),
		AccountID:     accountID,
		FundID:        fundID,
		HoldingType:   holdingType,
		Units:         decimal.RequireFromString(units),
		NavPerUnit:    decimal.RequireFromString(nav),
		Amount:        decimal.RequireFromString(amount),
		EffectiveDate: time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC),
		CreatedAt:     time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC),
		CashFlowID:    uuid.New(),
	}
}

func TestReplay_SubscribeRedeemSubscribeScenario(t *testing.T) {
	// The full A -> B -> C sequence:
	// A: investor 1 subscribes 1,000,000 at nav 10,000 -> 100.000 units
	// B: investor 1 redeems 40 units at nav 12,000 -> 60.000 remain, avg cost unchanged
	// C: investor 2 subscribes 500,000 at nav 12,000 -> 41.667 units
	fundID := uuid.New()
	investor1 := uuid.New()
	investor2 := uuid.New()

	entries := []*domain.FundUnitTransaction{
		entry(investor1, fundID, domain.HoldingTypeSubscribe, "100.000", "10000", "1000000.00", 1),
		entry(investor1, fundID, domain.HoldingTypeRedeem, "40.000", "12000", "480000.00", 2),
		entry(investor2, fundID, domain.HoldingTypeSubscribe, "41.667", "12000", "500000.00", 3),
	}

	state, err := Replay(entries)
	require.NoError(t, err)

	// Assert: investor 1 keeps 60 units at the original cost basis
	h1 := state.Holdings[investor1]
	require.NotNil(t, h1)
	assert.Equal(t, "60", h1.TotalUnits.String())
	assert.Equal(t, "10000", h1.AvgCostPerUnit.String())

	// Assert: investor 2 holds 41.667 units; cost basis is the 500,000 paid
	// divided by the rounded units, a hair below the 12,000 nav
	h2 := state.Holdings[investor2]
	require.NotNil(t, h2)
	assert.Equal(t, "41.667", h2.TotalUnits.String())
	assert.True(t, domain.RoundNav(h2.AvgCostPerUnit).Equal(decimal.RequireFromString("11999.904")),
		"got %s", h2.AvgCostPerUnit)

	// Assert: outstanding = 60 + 41.667 = 101.667
	assert.Equal(t, "101.667", state.OutstandingUnits.String())
}

func TestReplay_WeightedAverageCostBasis(t *testing.T) {
	fundID := uuid.New()
	investor := uuid.New()

	// 100 units at 10,000 then 50 units at 16,000:
	// avg = (100x10000 + 800000) / 150 = 12,000
	entries := []*domain.FundUnitTransaction{
		entry(investor, fundID, domain.HoldingTypeSubscribe, "100.000", "10000", "1000000.00", 1),
		entry(investor, fundID, domain.HoldingTypeSubscribe, "50.000", "16000", "800000.00", 2),
	}

	state, err := Replay(entries)
	require.NoError(t, err)

	h := state.Holdings[investor]
	assert.Equal(t, "150", h.TotalUnits.String())
	assert.Equal(t, "12000", h.AvgCostPerUnit.String())
}

func TestReplay_IsDeterministic(t *testing.T) {
	fundID := uuid.New()
	investor := uuid.New()

	entries := []*domain.FundUnitTransaction{
		entry(investor, fundID, domain.HoldingTypeSubscribe, "100.000", "10000", "1000000.00", 1),
		entry(investor, fundID, domain.HoldingTypeRedeem, "40.000", "12000", "480000.00", 2),
	}

	first, err := Replay(entries)
	require.NoError(t, err)
	second, err := Replay(entries)
	require.NoError(t, err)

	assert.True(t, first.OutstandingUnits.Equal(second.OutstandingUnits))
	assert.True(t, first.Holdings[investor].TotalUnits.Equal(second.Holdings[investor].TotalUnits))
	assert.True(t, first.Holdings[investor].AvgCostPerUnit.Equal(second.Holdings[investor].AvgCostPerUnit))
}

func TestReplay_RedemptionExceedingUnitsFails(t *testing.T) {
	fundID := uuid.New()
	investor := uuid.New()

	entries := []*domain.FundUnitTransaction{
		entry(investor, fundID, domain.HoldingTypeSubscribe, "100.000", "10000", "1000000.00", 1),
		entry(investor, fundID, domain.HoldingTypeRedeem, "150.000", "12000", "1800000.00", 2),
	}

	state, err := Replay(entries)

	assert.Nil(t, state)
	assert.ErrorIs(t, err, domain.ErrReplayInconsistency)
	assert.Contains(t, err.Error(), investor.String())
}

func TestReplay_RedemptionForUnknownAccountFails(t *testing.T) {
	fundID := uuid.New()

	entries := []*domain.FundUnitTransaction{
		entry(uuid.New(), fundID, domain.HoldingTypeRedeem, "10.000", "10000", "100000.00", 1),
	}

	_, err := Replay(entries)
	assert.ErrorIs(t, err, domain.ErrReplayInconsistency)
}

func TestReplay_InvalidEntryFails(t *testing.T) {
	fundID := uuid.New()
	bad := entry(uuid.New(), fundID, domain.HoldingTypeSubscribe, "100.000", "10000", "1000000.00", 1)
	bad.Amount = decimal.RequireFromString("500.00") // inconsistent with units x nav

	_, err := Replay([]*domain.FundUnitTransaction{bad})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReplay_EmptyLedger(t *testing.T) {
	state, err := Replay(nil)

	require.NoError(t, err)
	assert.True(t, state.OutstandingUnits.IsZero())
	assert.Empty(t, state.Holdings)
}

func TestCheckInvariant(t *testing.T) {
	state := NewState()
	state.Holdings[uuid.New()] = &HoldingState{TotalUnits: decimal.RequireFromString("60.000")}
	state.Holdings[uuid.New()] = &HoldingState{TotalUnits: decimal.RequireFromString("41.667")}

	state.OutstandingUnits = decimal.RequireFromString("101.667")
	assert.NoError(t, state.CheckInvariant())

	state.OutstandingUnits = decimal.RequireFromString("100.000")
	assert.ErrorIs(t, state.CheckInvariant(), domain.ErrReplayInconsistency)
}

func TestRealizedPnL(t *testing.T) {
	// Scenario B: redeem 40 units at nav 12,000 against cost basis 10,000
	realized := RealizedPnL(
		decimal.RequireFromString("40.000"),
		decimal.RequireFromString("12000"),
		decimal.RequireFromString("10000"))

	assert.Equal(t, "80000", realized.String())
}
