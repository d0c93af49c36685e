package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// marketValueRepository implements domain.MarketValueRepository
type marketValueRepository struct {
	db *DB
}

// NewMarketValueRepository creates a new market value repository
func NewMarketValueRepository(db *DB) domain.MarketValueRepository {
	return &marketValueRepository{db: db}
}

const valuationColumns = `id, fund_id, valuation_date, market_value`

func scanValuation(row rowScanner) (*domain.FundValuationPoint, error) {
	var point domain.FundValuationPoint
	var valueStr string

	err := row.Scan(
		&point.ID,
		&point.FundID,
		&point.Date,
		&valueStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Wrapped so callers can fall back to cash-only valuation
			return nil, fmt.Errorf("%w: no valuation history", domain.ErrInvalidValuation)
		}
		return nil, fmt.Errorf("failed to scan valuation point: %w", err)
	}

	if point.MarketValue, err = decimal.NewFromString(valueStr); err != nil {
		return nil, fmt.Errorf("failed to parse market_value: %w", err)
	}

	return &point, nil
}

// Add creates a new valuation point
func (r *marketValueRepository) Add(ctx context.Context, point *domain.FundValuationPoint) error {
	query := `
		INSERT INTO fund_valuation_history (id, fund_id, valuation_date, market_value)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		point.ID,
		point.FundID,
		point.Date,
		point.MarketValue.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert valuation point: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent valuation point for a fund
func (r *marketValueRepository) GetLatest(ctx context.Context, fundID uuid.UUID) (*domain.FundValuationPoint, error) {
	query := `
		SELECT ` + valuationColumns + `
		FROM fund_valuation_history
		WHERE fund_id = $1
		ORDER BY valuation_date DESC
		LIMIT 1
	`

	return scanValuation(r.db.QueryRowContext(ctx, query, fundID))
}

// GetLatestAsOf retrieves the most recent valuation point on or before asOf
func (r *marketValueRepository) GetLatestAsOf(ctx context.Context, fundID uuid.UUID, asOf time.Time) (*domain.FundValuationPoint, error) {
	query := `
		SELECT ` + valuationColumns + `
		FROM fund_valuation_history
		WHERE fund_id = $1 AND valuation_date <= $2
		ORDER BY valuation_date DESC
		LIMIT 1
	`

	return scanValuation(r.db.QueryRowContext(ctx, query, fundID, asOf))
}
