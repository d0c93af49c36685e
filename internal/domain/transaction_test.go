package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validSubscribeEntry() FundUnitTransaction {
	return FundUnitTransaction{
		ID:            uuid.New(),
		AccountID:     uuid.New(),
		FundID:        uuid.New(),
		HoldingType:   HoldingTypeSubscribe,
		Units:         decimal.RequireFromString("100.000"),
		NavPerUnit:    decimal.RequireFromString("10000"),
		Amount:        decimal.RequireFromString("1000000.00"),
		EffectiveDate: time.Now(),
		CreatedAt:     time.Now(),
		CashFlowID:    uuid.New(),
	}
}

func TestFundUnitTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tx *FundUnitTransaction)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Valid subscription entry should pass",
			mutate:  func(tx *FundUnitTransaction) {},
			wantErr: false,
		},
		{
			name: "Valid redemption entry should pass",
			mutate: func(tx *FundUnitTransaction) {
				tx.HoldingType = HoldingTypeRedeem
				tx.Units = decimal.RequireFromString("40.000")
				tx.NavPerUnit = decimal.RequireFromString("12000")
				tx.Amount = decimal.RequireFromString("480000.00")
			},
			wantErr: false,
		},
		{
			name: "Empty account ID should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.AccountID = uuid.Nil
			},
			wantErr: true,
			errMsg:  "account ID",
		},
		{
			name: "Empty fund ID should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.FundID = uuid.Nil
			},
			wantErr: true,
			errMsg:  "fund ID",
		},
		{
			name: "Unknown holding type should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.HoldingType = HoldingType("TRANSFER")
			},
			wantErr: true,
			errMsg:  "holding type",
		},
		{
			name: "Zero units should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.Units = decimal.Zero
			},
			wantErr: true,
			errMsg:  "units must be positive",
		},
		{
			name: "Negative units should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.Units = decimal.RequireFromString("-1")
			},
			wantErr: true,
			errMsg:  "units must be positive",
		},
		{
			name: "Zero nav per unit should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.NavPerUnit = decimal.Zero
			},
			wantErr: true,
			errMsg:  "nav per unit must be positive",
		},
		{
			name: "Amount inconsistent with units x nav should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.Amount = decimal.RequireFromString("999000.00")
			},
			wantErr: true,
			errMsg:  "amount must equal units x nav",
		},
		{
			name: "Amount differing only by unit rounding should pass",
			mutate: func(tx *FundUnitTransaction) {
				// 41.667 x 12000 = 500004: the 4 currency units of drift come
				// from rounding the derived units to 3 decimals
				tx.Units = decimal.RequireFromString("41.667")
				tx.NavPerUnit = decimal.RequireFromString("12000")
				tx.Amount = decimal.RequireFromString("500000.00")
			},
			wantErr: false,
		},
		{
			name: "Zero effective date should fail",
			mutate: func(tx *FundUnitTransaction) {
				tx.EffectiveDate = time.Time{}
			},
			wantErr: true,
			errMsg:  "effective date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validSubscribeEntry()
			tt.mutate(&tx)

			err := tx.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFundUnitTransaction_FlowSign(t *testing.T) {
	subscribe := validSubscribeEntry()
	assert.True(t, subscribe.FlowSign().Equal(decimal.NewFromInt(1)))

	redeem := validSubscribeEntry()
	redeem.HoldingType = HoldingTypeRedeem
	assert.True(t, redeem.FlowSign().Equal(decimal.NewFromInt(-1)))
}

func TestCashFlow_Validate(t *testing.T) {
	tests := []struct {
		name    string
		flow    CashFlow
		wantErr bool
	}{
		{
			name: "Positive inflow should pass",
			flow: CashFlow{
				ID:       uuid.New(),
				FundID:   uuid.New(),
				FlowDate: time.Now(),
				Amount:   decimal.RequireFromString("1000000.00"),
			},
			wantErr: false,
		},
		{
			name: "Negative outflow should pass",
			flow: CashFlow{
				ID:       uuid.New(),
				FundID:   uuid.New(),
				FlowDate: time.Now(),
				Amount:   decimal.RequireFromString("-480000.00"),
			},
			wantErr: false,
		},
		{
			name: "Empty fund ID should fail",
			flow: CashFlow{
				ID:       uuid.New(),
				FlowDate: time.Now(),
				Amount:   decimal.NewFromInt(100),
			},
			wantErr: true,
		},
		{
			name: "Zero amount should fail",
			flow: CashFlow{
				ID:       uuid.New(),
				FundID:   uuid.New(),
				FlowDate: time.Now(),
				Amount:   decimal.Zero,
			},
			wantErr: true,
		},
		{
			name: "Zero flow date should fail",
			flow: CashFlow{
				ID:     uuid.New(),
				FundID: uuid.New(),
				Amount: decimal.NewFromInt(100),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flow.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
