// Package limiter provides capped, expiring counters used to throttle alerts.
package limiter

import (
	"context"
	"time"
)

// Quota is a per-key counter with a hard limit and a time to live.
type Quota interface {
	// Used returns the current count for key (0 if absent or expired).
	Used(ctx context.Context, key string) (int, error)
	// Reserve atomically takes one unit if the count is below limit.
	// A fresh key starts its ttl on the first reservation.
	Reserve(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error)
	// Release returns one previously reserved unit.
	Release(ctx context.Context, key string) error
}
