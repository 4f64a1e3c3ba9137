package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// KEYS: counter. ARGV: limit, ttl ms.
var reserveScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var releaseScript = goredis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n > 0 then
  redis.call('DECR', KEYS[1])
end
return n
`)

// Redis is a quota backed by INCR/PEXPIRE counters.
type Redis struct {
	client *goredis.Client
	prefix string
}

var _ Quota = (*Redis)(nil)

// NewRedis constructs a Redis-backed quota; keys are stored as prefix:key.
func NewRedis(client *goredis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Used returns the live count for key.
func (l *Redis) Used(ctx context.Context, key string) (int, error) {
	n, err := l.client.Get(ctx, l.key(key)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// Reserve increments the counter unless it already reached limit.
func (l *Redis) Reserve(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	ok, err := reserveScript.Run(ctx, l.client, []string{l.key(key)}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	return ok == 1, nil
}

// Release decrements a positive counter.
func (l *Redis) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (l *Redis) key(k string) string {
	if l.prefix == "" {
		return k
	}
	return l.prefix + ":" + k
}
