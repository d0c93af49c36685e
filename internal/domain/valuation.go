package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundValuationPoint is one recorded market valuation of a fund's asset
// holdings (excluding cash) at a point in time. The valuation source reads
// the latest point and adds the fund's cash balance to obtain the total
// fund value used for NAV computation.
type FundValuationPoint struct {
	ID          uuid.UUID
	FundID      uuid.UUID
	Date        time.Time
	MarketValue decimal.Decimal
}
