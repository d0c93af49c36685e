package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// holdingRepository implements domain.HoldingRepository
type holdingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *DB) domain.HoldingRepository {
	return &holdingRepository{db: db}
}

const holdingColumns = `id, account_id, fund_id, total_units, avg_cost_per_unit`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (*domain.InvestorHolding, error) {
	var holding domain.InvestorHolding
	var unitsStr, avgCostStr string

	err := row.Scan(
		&holding.ID,
		&holding.AccountID,
		&holding.FundID,
		&unitsStr,
		&avgCostStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}

	if holding.TotalUnits, err = decimal.NewFromString(unitsStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_units: %w", err)
	}
	if holding.AvgCostPerUnit, err = decimal.NewFromString(avgCostStr); err != nil {
		return nil, fmt.Errorf("failed to parse avg_cost_per_unit: %w", err)
	}

	return &holding, nil
}

// GetByID retrieves a holding by its ID
func (r *holdingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.InvestorHolding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM investor_holdings
		WHERE id = $1
	`

	return scanHolding(r.db.QueryRowContext(ctx, query, id))
}

// GetByAccountAndFund retrieves the holding for one account in one fund
func (r *holdingRepository) GetByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) (*domain.InvestorHolding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM investor_holdings
		WHERE account_id = $1 AND fund_id = $2
	`

	return scanHolding(r.db.QueryRowContext(ctx, query, accountID, fundID))
}

// ListByFund retrieves all holdings of a fund, including closed ones
func (r *holdingRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.InvestorHolding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM investor_holdings
		WHERE fund_id = $1
		ORDER BY account_id
	`

	rows, err := r.db.QueryContext(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*domain.InvestorHolding
	for rows.Next() {
		holding, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, holding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}
