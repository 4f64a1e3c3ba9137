package limiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisQuota(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "quota"), server
}

func TestRedis_ReserveUpToLimit(t *testing.T) {
	l, server := newRedisQuota(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Reserve(ctx, "day", 2, 24*time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Reserve(ctx, "day", 2, 24*time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := l.Used(ctx, "day")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ttl := server.TTL("quota:day")
	require.True(t, ttl > 0 && ttl <= 24*time.Hour, "ttl=%v", ttl)
}

func TestRedis_ReleaseReturnsUnit(t *testing.T) {
	l, _ := newRedisQuota(t)
	ctx := context.Background()

	ok, err := l.Reserve(ctx, "day", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "day"))
	n, err := l.Used(ctx, "day")
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err = l.Reserve(ctx, "day", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "missing"))
}

func TestRedis_ExpiryResetsCount(t *testing.T) {
	l, server := newRedisQuota(t)
	ctx := context.Background()

	ok, err := l.Reserve(ctx, "day", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	server.FastForward(2 * time.Hour)

	n, err := l.Used(ctx, "day")
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err = l.Reserve(ctx, "day", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
}
