// Package fundlock serializes ledger-mutating operations per fund.
//
// Within a single fund all writes (subscribe, redeem, recalculate, convert)
// hold the fund's lock; different funds proceed concurrently. A
// recalculation additionally marks the fund RECALCULATING so that competing
// writes fail fast with ErrConcurrentRecalculation instead of queuing
// silently behind a long replay. Reads never take the lock.
package fundlock

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/joaopcs/fundledger-backend/internal/domain"
)

type fundLock struct {
	mu            sync.Mutex
	recalculating atomic.Bool
}

// Registry hands out per-fund locks, created lazily on first use.
type Registry struct {
	mu    sync.Mutex
	funds map[uuid.UUID]*fundLock
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		funds: make(map[uuid.UUID]*fundLock),
	}
}

func (r *Registry) get(fundID uuid.UUID) *fundLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.funds[fundID]
	if !ok {
		l = &fundLock{}
		r.funds[fundID] = l
	}
	return l
}

// Acquire takes the fund's write lock for a subscribe/redeem/convert
// operation. It fails fast with ErrConcurrentRecalculation when a
// recalculation is in flight for the fund, both before blocking and again
// after acquiring (a recalculation may have been admitted while this caller
// was queued behind another writer).
//
// The returned release function must be called exactly once.
func (r *Registry) Acquire(fundID uuid.UUID) (release func(), err error) {
	l := r.get(fundID)

	if l.recalculating.Load() {
		return nil, domain.ErrConcurrentRecalculation
	}

	l.mu.Lock()

	if l.recalculating.Load() {
		l.mu.Unlock()
		return nil, domain.ErrConcurrentRecalculation
	}

	return l.mu.Unlock, nil
}

// BeginRecalc admits at most one recalculation per fund. The RECALCULATING
// flag is raised before waiting on the write lock so that new writers fail
// fast; a second recalculation gets ErrConcurrentRecalculation immediately.
//
// The returned done function lowers the flag and releases the lock; it must
// be called exactly once, whether the recalculation succeeded or failed.
func (r *Registry) BeginRecalc(fundID uuid.UUID) (done func(), err error) {
	l := r.get(fundID)

	if !l.recalculating.CompareAndSwap(false, true) {
		return nil, domain.ErrConcurrentRecalculation
	}

	l.mu.Lock()

	return func() {
		l.recalculating.Store(false)
		l.mu.Unlock()
	}, nil
}
