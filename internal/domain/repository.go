package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundRepository defines the interface for fund persistence operations
type FundRepository interface {
	// GetByID retrieves a fund (or plain portfolio) by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Fund, error)

	// Create creates a new fund record
	Create(ctx context.Context, fund *Fund) error

	// Update persists the full mutable state of a fund
	Update(ctx context.Context, fund *Fund) error

	// UpdateNav persists only navPerUnit and lastNavDate.
	// Used by the NAV calculator so an explicit recalculate never touches
	// outstanding units or cash.
	UpdateNav(ctx context.Context, fundID uuid.UUID, navPerUnit decimal.Decimal, asOf time.Time) error
}

// HoldingRepository defines the interface for investor holding reads.
// Holdings are written only through the ledger repository's atomic batches,
// never independently of the ledger entry that changed them.
type HoldingRepository interface {
	// GetByID retrieves a holding by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*InvestorHolding, error)

	// GetByAccountAndFund retrieves the holding for one account in one fund.
	// Returns ErrHoldingNotFound if the account has never subscribed.
	GetByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) (*InvestorHolding, error)

	// ListByFund retrieves all holdings of a fund, including closed ones
	ListByFund(ctx context.Context, fundID uuid.UUID) ([]*InvestorHolding, error)
}

// LedgerChange describes the single retroactive correction a recalculation
// applies to the ledger before replaying it. At most one of the fields is
// set; all nil means a pure rebuild.
type LedgerChange struct {
	// Insert is a new (possibly backdated) entry with its cash flow
	Insert     *FundUnitTransaction
	InsertFlow *CashFlow

	// Update replaces an existing entry's mutable fields; UpdateFlow carries
	// the adjusted cash flow for the same entry
	Update     *FundUnitTransaction
	UpdateFlow *CashFlow

	// Delete removes an entry and cascades to its cash flow
	Delete *uuid.UUID
}

// IsZero reports whether the change carries no correction.
func (c LedgerChange) IsZero() bool {
	return c.Insert == nil && c.Update == nil && c.Delete == nil
}

// ReplayBatch is the full output of a recalculation, committed atomically:
// the ledger change itself, every holding state produced by the replay, and
// the fund's refreshed counters. On any failure the whole batch is discarded.
type ReplayBatch struct {
	Fund     *Fund
	Holdings []*InvestorHolding
	Change   LedgerChange
}

// PurgeResult reports the blast radius of a fund teardown.
type PurgeResult struct {
	HoldingsDeleted     int
	TransactionsDeleted int
	CashFlowsDeleted    int
	RemainingCash       decimal.Decimal
}

// LedgerRepository defines the interface for the append-only unit
// transaction log and the atomic multi-entity batches built on it.
//
// Invariant: a fund's cash balance is derived state, always equal to the sum
// of its cash flows. Every write path recomputes it from the flows; a balance
// seeded without matching cash flow rows does not survive the next write.
type LedgerRepository interface {
	// GetTransactionByID retrieves a single ledger entry
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*FundUnitTransaction, error)

	// GetCashFlowByID retrieves the cash flow owned by a ledger entry
	GetCashFlowByID(ctx context.Context, id uuid.UUID) (*CashFlow, error)

	// ListByFund retrieves all entries of a fund ordered by
	// (effective_date, created_at) ascending - the replay tie-break contract
	ListByFund(ctx context.Context, fundID uuid.UUID) ([]*FundUnitTransaction, error)

	// ListByAccountAndFund retrieves one account's entries in the same order
	ListByAccountAndFund(ctx context.Context, accountID, fundID uuid.UUID) ([]*FundUnitTransaction, error)

	// LatestEffectiveDate returns the effective date of the fund's most
	// recent ledger entry, or nil when the ledger is empty. Processors use it
	// to detect out-of-order inserts.
	LatestEffectiveDate(ctx context.Context, fundID uuid.UUID) (*time.Time, error)

	// AppendEntry performs the in-order subscribe/redeem unit of work
	// atomically: insert the entry and its cash flow, upsert the holding,
	// update the fund's outstanding units and cash balance.
	AppendEntry(ctx context.Context, entry *FundUnitTransaction, flow *CashFlow, holding *InvestorHolding, fund *Fund) error

	// CommitReplay applies a recalculation batch atomically: the ledger
	// change, all holding upserts, and the fund counters. All-or-nothing.
	CommitReplay(ctx context.Context, batch *ReplayBatch) error

	// PurgeFund executes the teardown deletion plan in one transaction:
	// delete all holdings, all unit transactions and their cash flows,
	// persist the reset fund (fund mode off, zero nav/units) with its cash
	// balance recomputed from the remaining non-fund cash flows.
	PurgeFund(ctx context.Context, fund *Fund) (*PurgeResult, error)
}

// MarketValueRepository defines the interface for fund valuation history
// persistence operations
type MarketValueRepository interface {
	// Add creates a new valuation point
	Add(ctx context.Context, point *FundValuationPoint) error

	// GetLatest retrieves the most recent valuation point for a fund
	GetLatest(ctx context.Context, fundID uuid.UUID) (*FundValuationPoint, error)

	// GetLatestAsOf retrieves the most recent valuation point on or before
	// the given date
	GetLatestAsOf(ctx context.Context, fundID uuid.UUID, asOf time.Time) (*FundValuationPoint, error)
}

// ValuationSource supplies the fund's total current market value (asset
// holdings plus cash) at a point in time. Consumed, not implemented, by the
// ledger core; failures surface as ErrInvalidValuation and must leave the
// previous NAV intact.
type ValuationSource interface {
	GetFundTotalValue(ctx context.Context, fundID uuid.UUID, asOf *time.Time) (decimal.Decimal, error)
}
