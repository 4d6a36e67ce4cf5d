package port

import (
	"context"
	"time"
)

type StockLedger interface {
	// TryReserve atomically decrements stock by quantity if enough remains.
	// Returns the new remaining count and whether the reservation was accepted.
	TryReserve(ctx context.Context, itemID string, quantity int) (int, bool, error)

	// Release restores stock after a later step failed (compensation).
	Release(ctx context.Context, itemID string, quantity int) error

	// SetStock seeds or overwrites the counter; used at init time and by
	// reconciliation, never on the request path.
	SetStock(ctx context.Context, itemID string, quantity int) error

	// Remaining reads the counter without mutating it.
	Remaining(ctx context.Context, itemID string) (int, error)
}

type QuotaKeeper interface {
	// TryAdmit atomically admits quantity against the (customer, sale)
	// counter iff the new total stays within limit. Returns the new total
	// and whether admission was accepted.
	TryAdmit(ctx context.Context, customerID, saleID string, quantity, limit int) (int, bool, error)

	// Release decrements the counter, floored at zero (compensation).
	Release(ctx context.Context, customerID, saleID string, quantity int) error

	// SetTotal overwrites the counter from durable truth (reconciliation).
	SetTotal(ctx context.Context, customerID, saleID string, total int) error

	// ListCustomers returns every customer holding a quota counter for
	// saleID, whatever its value. Reconciliation uses it to find counters
	// with no durable evidence behind them.
	ListCustomers(ctx context.Context, saleID string) ([]string, error)
}

// LeaseManager grants short-lived, token-owned mutual exclusion over one
// inventory key. At most one live lease exists per item at any instant.
type LeaseManager interface {
	// Acquire succeeds only if no live lease exists for itemID; on success
	// it returns a fresh ownership token.
	Acquire(ctx context.Context, itemID string, ttl time.Duration) (string, bool, error)

	// Renew extends the lease iff token still owns it.
	Renew(ctx context.Context, itemID, token string, extension time.Duration) (bool, error)

	// Release deletes the lease iff token still owns it. A mismatched token
	// means the lease expired and was possibly reacquired; Release returns
	// false rather than deleting another holder's lease.
	Release(ctx context.Context, itemID, token string) (bool, error)
}
