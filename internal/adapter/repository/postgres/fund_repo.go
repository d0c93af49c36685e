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

// fundRepository implements domain.FundRepository
type fundRepository struct {
	db *DB
}

// NewFundRepository creates a new fund repository
func NewFundRepository(db *DB) domain.FundRepository {
	return &fundRepository{db: db}
}

const fundColumns = `id, name, base_currency, fund_mode, nav_per_unit, total_outstanding_units, cash_balance, last_nav_date`

func scanFund(row *sql.Row) (*domain.Fund, error) {
	var fund domain.Fund
	var navStr, unitsStr, cashStr string
	var lastNavDate sql.NullTime

	err := row.Scan(
		&fund.ID,
		&fund.Name,
		&fund.BaseCurrency,
		&fund.FundMode,
		&navStr,
		&unitsStr,
		&cashStr,
		&lastNavDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, fmt.Errorf("failed to scan fund: %w", err)
	}

	if fund.NavPerUnit, err = decimal.NewFromString(navStr); err != nil {
		return nil, fmt.Errorf("failed to parse nav_per_unit: %w", err)
	}
	if fund.TotalOutstandingUnits, err = decimal.NewFromString(unitsStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_outstanding_units: %w", err)
	}
	if fund.CashBalance, err = decimal.NewFromString(cashStr); err != nil {
		return nil, fmt.Errorf("failed to parse cash_balance: %w", err)
	}
	if lastNavDate.Valid {
		t := lastNavDate.Time
		fund.LastNavDate = &t
	}

	return &fund, nil
}

// GetByID retrieves a fund (or plain portfolio) by its ID
func (r *fundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	query := `
		SELECT ` + fundColumns + `
		FROM funds
		WHERE id = $1
	`

	return scanFund(r.db.QueryRowContext(ctx, query, id))
}

// Create creates a new fund record
func (r *fundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	query := `
		INSERT INTO funds (id, name, base_currency, fund_mode, nav_per_unit, total_outstanding_units, cash_balance, last_nav_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		fund.ID,
		fund.Name,
		fund.BaseCurrency,
		fund.FundMode,
		fund.NavPerUnit.String(),
		fund.TotalOutstandingUnits.String(),
		fund.CashBalance.String(),
		nullableTime(fund.LastNavDate),
	)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}

	return nil
}

// Update persists the full mutable state of a fund
func (r *fundRepository) Update(ctx context.Context, fund *domain.Fund) error {
	query := `
		UPDATE funds
		SET name = $2, fund_mode = $3, nav_per_unit = $4, total_outstanding_units = $5, cash_balance = $6, last_nav_date = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		fund.ID,
		fund.Name,
		fund.FundMode,
		fund.NavPerUnit.String(),
		fund.TotalOutstandingUnits.String(),
		fund.CashBalance.String(),
		nullableTime(fund.LastNavDate),
	)
	if err != nil {
		return fmt.Errorf("failed to update fund: %w", err)
	}

	return requireOneRow(result, domain.ErrFundNotFound)
}

// UpdateNav persists only navPerUnit and lastNavDate
func (r *fundRepository) UpdateNav(ctx context.Context, fundID uuid.UUID, navPerUnit decimal.Decimal, asOf time.Time) error {
	query := `
		UPDATE funds
		SET nav_per_unit = $2, last_nav_date = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, fundID, navPerUnit.String(), asOf)
	if err != nil {
		return fmt.Errorf("failed to update fund nav: %w", err)
	}

	return requireOneRow(result, domain.ErrFundNotFound)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func requireOneRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
