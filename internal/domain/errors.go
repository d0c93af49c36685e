package domain

import "errors"

// Sentinel errors for the fund ledger.
// Adapters map these to transport status codes in one place; use cases wrap
// them with fmt.Errorf("...: %w", err) to add detail without losing identity.
var (
	// ErrValidation marks bad input rejected before any ledger write.
	ErrValidation = errors.New("validation failed")

	// ErrFundNotFound is returned when a fund (or portfolio) ID does not resolve.
	ErrFundNotFound = errors.New("fund not found")

	// ErrNotAFund is returned when an operation requires fund mode but the
	// portfolio has not been converted.
	ErrNotAFund = errors.New("portfolio is not in fund mode")

	// ErrHoldingNotFound is returned when a holding ID or (account, fund) pair
	// does not resolve.
	ErrHoldingNotFound = errors.New("holding not found")

	// ErrTransactionNotFound is returned when a ledger entry ID does not resolve.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInsufficientUnits is a business-rule rejection: a redemption asked for
	// more units than the holding owns. Never clamped to a partial redemption.
	ErrInsufficientUnits = errors.New("insufficient units")

	// ErrInsufficientPrecision is returned when a nonzero subscription amount
	// rounds to zero units at the ledger's unit precision.
	ErrInsufficientPrecision = errors.New("amount rounds to zero units")

	// ErrInvalidValuation is returned when the valuation source cannot supply a
	// total fund value. The previous NAV must be left intact.
	ErrInvalidValuation = errors.New("invalid valuation")

	// ErrConcurrentRecalculation is returned when a ledger-mutating operation is
	// requested while a recalculation is in flight for the same fund, or when a
	// second recalculation is requested. Callers may retry later.
	ErrConcurrentRecalculation = errors.New("recalculation already in progress")

	// ErrReplayInconsistency is fatal to a requested edit: replaying the
	// corrected ledger would drive a holding negative at some point in history.
	// The original ledger state is guaranteed untouched.
	ErrReplayInconsistency = errors.New("ledger replay inconsistency")

	// ErrConfirmationRequired guards the destructive fund teardown path.
	ErrConfirmationRequired = errors.New("explicit confirmation required")
)
