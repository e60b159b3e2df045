// Package quota admits or rejects exchange attempts against the
// per-user daily cap. The count is derived from the exchange history
// rather than a maintained counter, so admission and history can never
// disagree. The check-then-append window is deliberately not
// transactional: overlapping concurrent attempts by one user may
// transiently admit slightly past the cap, an accepted relaxed bound.
package quota

import (
	"context"
	"fmt"
	"time"
)

// DefaultDailyCap is the fixed number of user-authored exchanges a
// non-exempt user may submit per UTC day.
const DefaultDailyCap = 10

// UnlimitedRemaining is the sentinel Remaining value for exempt users.
const UnlimitedRemaining = -1

// Counter is the slice of the store the ledger reads.
type Counter interface {
	CountUserExchangesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted  bool
	Remaining int // UnlimitedRemaining for exempt users
	Current   int
	Limit     int
}

// Ledger computes per-user daily exchange counts and admits or rejects
// new attempts. It must run before any backend call: a rejection
// short-circuits the whole exchange so no inference cost is incurred.
type Ledger struct {
	counter Counter
	cap     int
	now     func() time.Time
}

// NewLedger creates a ledger with the given daily cap (<=0 uses
// DefaultDailyCap).
func NewLedger(counter Counter, dailyCap int) *Ledger {
	if dailyCap <= 0 {
		dailyCap = DefaultDailyCap
	}
	return &Ledger{counter: counter, cap: dailyCap, now: time.Now}
}

// CheckAndAdmit decides whether the user may start another exchange.
// The increment is implicit: it happens when the subsequent user
// exchange is appended, not here.
func (l *Ledger) CheckAndAdmit(ctx context.Context, userID string, exempt bool) (Decision, error) {
	if exempt {
		return Decision{Admitted: true, Remaining: UnlimitedRemaining, Limit: l.cap}, nil
	}

	midnight := l.now().UTC().Truncate(24 * time.Hour)
	count, err := l.counter.CountUserExchangesSince(ctx, userID, midnight)
	if err != nil {
		return Decision{}, fmt.Errorf("count today's exchanges: %w", err)
	}

	d := Decision{Current: count, Limit: l.cap}
	if count < l.cap {
		d.Admitted = true
		d.Remaining = l.cap - count - 1
	}
	return d, nil
}

// Error is the user-visible quota rejection.
type Error struct {
	Limit   int `json:"limit"`
	Current int `json:"current"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("daily exchange limit reached (%d of %d)", e.Current, e.Limit)
}
