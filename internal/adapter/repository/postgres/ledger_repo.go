package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

const transactionColumns = `id, account_id, fund_id, holding_type, units, nav_per_unit, amount, effective_date, created_at, cash_flow_id`

func scanTransaction(row rowScanner) (*domain.FundUnitTransaction, error) {
	var tx domain.FundUnitTransaction
	var unitsStr, navStr, amountStr string

	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.FundID,
		&tx.HoldingType,
		&unitsStr,
		&navStr,
		&amountStr,
		&tx.EffectiveDate,
		&tx.CreatedAt,
		&tx.CashFlowID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Units, err = decimal.NewFromString(unitsStr); err != nil {
		return nil, fmt.Errorf("failed to parse units: %w", err)
	}
	if tx.NavPerUnit, err = decimal.NewFromString(navStr); err != nil {
		return nil, fmt.Errorf("failed to parse nav_per_unit: %w", err)
	}
	if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	return &tx, nil
}

// GetTransactionByID retrieves a single ledger entry
func (r *ledgerRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*domain.FundUnitTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM fund_unit_transactions
		WHERE id = $1
	`

	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

// GetCashFlowByID retrieves the cash flow owned by a ledger entry
func (r *ledgerRepository) GetCashFlowByID(ctx context.Context, id uuid.UUID) (*domain.CashFlow, error) {
	query := `
		SELECT id, fund_id, flow_date, amount, description, funding_source
		FROM cash_flows
		WHERE id = $1
	`

	var flow domain.CashFlow
	var amountStr string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&flow.ID,
		&flow.FundID,
		&flow.FlowDate,
		&amountStr,
		&flow.Description,
		&flow.FundingSource,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cash flow %s not found: %w", id, domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("failed to get cash flow: %w", err)
	}

	if flow.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse cash flow amount: %w", err)
	}

	return &flow, nil
}

// ListByFund retrieves all entries of a fund in replay order:
// (effective_date, created_at) ascending
func (r *ledgerRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.FundUnitTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM fund_unit_transactions
		WHERE fund_id = $1
		ORDER BY effective_date ASC, created_at ASC
	`

	return r.queryTransactions(ctx, query, fundID)
}

// ListByAccountAndFund retrieves one account's entries in replay order
func (r *ledgerRepository) ListByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) ([]*domain.FundUnitTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM fund_unit_transactions
		WHERE account_id = $1 AND fund_id = $2
		ORDER BY effective_date ASC, created_at ASC
	`

	return r.queryTransactions(ctx, query, accountID, fundID)
}

func (r *ledgerRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.FundUnitTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.FundUnitTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txs, nil
}

// LatestEffectiveDate returns the effective date of the fund's most recent
// entry, or nil when the ledger is empty
func (r *ledgerRepository) LatestEffectiveDate(ctx context.Context, fundID uuid.UUID) (*time.Time, error) {
	query := `
		SELECT effective_date
		FROM fund_unit_transactions
		WHERE fund_id = $1
		ORDER BY effective_date DESC
		LIMIT 1
	`

	var date time.Time
	err := r.db.QueryRowContext(ctx, query, fundID).Scan(&date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest effective date: %w", err)
	}

	return &date, nil
}

// AppendEntry performs the in-order subscribe/redeem unit of work in one
// database transaction: cash flow + ledger entry inserts, holding upsert,
// fund counters. The cash balance is recomputed from the cash flows, flow
// included, through the same derivation CommitReplay and PurgeFund use, so
// the three write paths can never disagree about what the balance means.
// The refreshed balance is written back onto the fund struct.
func (r *ledgerRepository) AppendEntry(ctx context.Context, entry *domain.FundUnitTransaction, flow *domain.CashFlow, holding *domain.InvestorHolding, fund *domain.Fund) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := insertCashFlow(ctx, dbTx, flow); err != nil {
		return err
	}
	if err := insertEntry(ctx, dbTx, entry); err != nil {
		return err
	}
	if err := upsertHolding(ctx, dbTx, holding); err != nil {
		return err
	}

	updateFundQuery := `
		UPDATE funds
		SET total_outstanding_units = $2,
		    cash_balance = COALESCE((SELECT SUM(amount) FROM cash_flows WHERE fund_id = $1), 0)
		WHERE id = $1
		RETURNING cash_balance
	`

	var cashStr string
	err = dbTx.QueryRowContext(ctx, updateFundQuery,
		fund.ID,
		fund.TotalOutstandingUnits.String(),
	).Scan(&cashStr)
	if err != nil {
		return fmt.Errorf("failed to update fund counters: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if fund.CashBalance, err = decimal.NewFromString(cashStr); err != nil {
		return fmt.Errorf("failed to parse cash_balance: %w", err)
	}

	return nil
}

// CommitReplay applies a recalculation batch in one database transaction:
// the ledger change, every holding upsert, and the fund counters. The cash
// balance is recomputed from the surviving cash flows (fund-unit flows plus
// any other portfolio flows) so it can never drift from the ledger.
func (r *ledgerRepository) CommitReplay(ctx context.Context, batch *domain.ReplayBatch) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := applyLedgerChange(ctx, dbTx, batch.Change); err != nil {
		return err
	}

	for _, holding := range batch.Holdings {
		if err := upsertHolding(ctx, dbTx, holding); err != nil {
			return err
		}
	}

	updateFundQuery := `
		UPDATE funds
		SET total_outstanding_units = $2,
		    nav_per_unit = $3,
		    last_nav_date = $4,
		    cash_balance = COALESCE((SELECT SUM(amount) FROM cash_flows WHERE fund_id = $1), 0)
		WHERE id = $1
		RETURNING cash_balance
	`

	var cashStr string
	err = dbTx.QueryRowContext(ctx, updateFundQuery,
		batch.Fund.ID,
		batch.Fund.TotalOutstandingUnits.String(),
		batch.Fund.NavPerUnit.String(),
		nullableTime(batch.Fund.LastNavDate),
	).Scan(&cashStr)
	if err != nil {
		return fmt.Errorf("failed to update fund counters: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replay batch: %w", err)
	}

	if batch.Fund.CashBalance, err = decimal.NewFromString(cashStr); err != nil {
		return fmt.Errorf("failed to parse cash_balance: %w", err)
	}

	return nil
}

// PurgeFund executes the teardown deletion plan in one database
// transaction: holdings, unit transactions, their cash flows, then the
// reset fund row with its cash recomputed from the remaining flows.
func (r *ledgerRepository) PurgeFund(ctx context.Context, fund *domain.Fund) (*domain.PurgeResult, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	result := &domain.PurgeResult{}

	holdingsResult, err := dbTx.ExecContext(ctx, `DELETE FROM investor_holdings WHERE fund_id = $1`, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete holdings: %w", err)
	}
	if n, err := holdingsResult.RowsAffected(); err == nil {
		result.HoldingsDeleted = int(n)
	}

	// Transactions carry the FK to their cash flows, so they go first; the
	// returned flow IDs drive the second delete
	rows, err := dbTx.QueryContext(ctx, `DELETE FROM fund_unit_transactions WHERE fund_id = $1 RETURNING cash_flow_id`, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete transactions: %w", err)
	}

	var flowIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deleted transaction: %w", err)
		}
		flowIDs = append(flowIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deleted transactions: %w", err)
	}
	result.TransactionsDeleted = len(flowIDs)

	if len(flowIDs) > 0 {
		flowsResult, err := dbTx.ExecContext(ctx, `DELETE FROM cash_flows WHERE id = ANY($1)`, pq.Array(flowIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to delete cash flows: %w", err)
		}
		if n, err := flowsResult.RowsAffected(); err == nil {
			result.CashFlowsDeleted = int(n)
		}
	}

	updateFundQuery := `
		UPDATE funds
		SET fund_mode = FALSE,
		    nav_per_unit = 0,
		    total_outstanding_units = 0,
		    last_nav_date = NULL,
		    cash_balance = COALESCE((SELECT SUM(amount) FROM cash_flows WHERE fund_id = $1), 0)
		WHERE id = $1
		RETURNING cash_balance
	`

	var cashStr string
	if err := dbTx.QueryRowContext(ctx, updateFundQuery, fund.ID).Scan(&cashStr); err != nil {
		return nil, fmt.Errorf("failed to reset fund: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit teardown: %w", err)
	}

	if result.RemainingCash, err = decimal.NewFromString(cashStr); err != nil {
		return nil, fmt.Errorf("failed to parse cash_balance: %w", err)
	}
	fund.CashBalance = result.RemainingCash

	return result, nil
}

func insertEntry(ctx context.Context, dbTx *sql.Tx, entry *domain.FundUnitTransaction) error {
	query := `
		INSERT INTO fund_unit_transactions (id, account_id, fund_id, holding_type, units, nav_per_unit, amount, effective_date, created_at, cash_flow_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := dbTx.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.FundID,
		string(entry.HoldingType),
		entry.Units.String(),
		entry.NavPerUnit.String(),
		entry.Amount.String(),
		entry.EffectiveDate,
		entry.CreatedAt,
		entry.CashFlowID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

func insertCashFlow(ctx context.Context, dbTx *sql.Tx, flow *domain.CashFlow) error {
	query := `
		INSERT INTO cash_flows (id, fund_id, flow_date, amount, description, funding_source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := dbTx.ExecContext(ctx, query,
		flow.ID,
		flow.FundID,
		flow.FlowDate,
		flow.Amount.String(),
		flow.Description,
		flow.FundingSource,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cash flow: %w", err)
	}

	return nil
}

func upsertHolding(ctx context.Context, dbTx *sql.Tx, holding *domain.InvestorHolding) error {
	query := `
		INSERT INTO investor_holdings (id, account_id, fund_id, total_units, avg_cost_per_unit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, fund_id)
		DO UPDATE SET total_units = EXCLUDED.total_units, avg_cost_per_unit = EXCLUDED.avg_cost_per_unit
	`

	_, err := dbTx.ExecContext(ctx, query,
		holding.ID,
		holding.AccountID,
		holding.FundID,
		holding.TotalUnits.String(),
		holding.AvgCostPerUnit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}

	return nil
}

func applyLedgerChange(ctx context.Context, dbTx *sql.Tx, change domain.LedgerChange) error {
	switch {
	case change.Insert != nil:
		if err := insertCashFlow(ctx, dbTx, change.InsertFlow); err != nil {
			return err
		}
		return insertEntry(ctx, dbTx, change.Insert)

	case change.Update != nil:
		updateEntryQuery := `
			UPDATE fund_unit_transactions
			SET units = $2, nav_per_unit = $3, amount = $4, effective_date = $5
			WHERE id = $1
		`
		result, err := dbTx.ExecContext(ctx, updateEntryQuery,
			change.Update.ID,
			change.Update.Units.String(),
			change.Update.NavPerUnit.String(),
			change.Update.Amount.String(),
			change.Update.EffectiveDate,
		)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := requireOneRow(result, domain.ErrTransactionNotFound); err != nil {
			return err
		}

		updateFlowQuery := `
			UPDATE cash_flows
			SET flow_date = $2, amount = $3, description = $4
			WHERE id = $1
		`
		if _, err := dbTx.ExecContext(ctx, updateFlowQuery,
			change.UpdateFlow.ID,
			change.UpdateFlow.FlowDate,
			change.UpdateFlow.Amount.String(),
			change.UpdateFlow.Description,
		); err != nil {
			return fmt.Errorf("failed to update cash flow: %w", err)
		}
		return nil

	case change.Delete != nil:
		var flowID uuid.UUID
		err := dbTx.QueryRowContext(ctx,
			`DELETE FROM fund_unit_transactions WHERE id = $1 RETURNING cash_flow_id`,
			*change.Delete,
		).Scan(&flowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrTransactionNotFound
			}
			return fmt.Errorf("failed to delete transaction: %w", err)
		}

		if _, err := dbTx.ExecContext(ctx, `DELETE FROM cash_flows WHERE id = $1`, flowID); err != nil {
			return fmt.Errorf("failed to delete cash flow: %w", err)
		}
		return nil

	default:
		return nil
	}
}
