package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed quota stored in the alert_quota table.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Quota = (*PG)(nil)

// NewPGWithQuerier constructs a PostgreSQL-backed quota over any querier.
func NewPGWithQuerier(q pgxQuerier) *PG {
	return &PG{pool: q}
}

// Used returns the live count for key.
func (l *PG) Used(ctx context.Context, key string) (int, error) {
	const q = `SELECT count FROM alert_quota WHERE key=$1 AND expires_at > now()`
	var n int
	err := l.pool.QueryRow(ctx, q, key).Scan(&n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	default:
		return 0, err
	}
}

// Reserve increments the counter unless it already reached limit.
// An expired row restarts at 1 with a new expiry.
func (l *PG) Reserve(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	const q = `
INSERT INTO alert_quota (key, count, expires_at)
VALUES ($1, 1, now() + $3::bigint * interval '1 millisecond')
ON CONFLICT (key) DO UPDATE
SET
  count = CASE WHEN alert_quota.expires_at <= now() THEN 1 ELSE alert_quota.count + 1 END,
  expires_at = CASE WHEN alert_quota.expires_at <= now() THEN EXCLUDED.expires_at ELSE alert_quota.expires_at END
WHERE alert_quota.expires_at <= now() OR alert_quota.count < $2
RETURNING count`
	if limit <= 0 {
		return false, nil
	}
	var n int
	err := l.pool.QueryRow(ctx, q, key, limit, ttl.Milliseconds()).Scan(&n)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// Release decrements a positive counter.
func (l *PG) Release(ctx context.Context, key string) error {
	const q = `UPDATE alert_quota SET count = count - 1 WHERE key=$1 AND count > 0`
	_, err := l.pool.Exec(ctx, q, key)
	return err
}
