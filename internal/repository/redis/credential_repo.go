package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// KEYS: order zset, records hash, seq counter. ARGV: identity, record, capacity.
// Returns {inserted, stored record}.
var addScript = goredis.NewScript(`
local seq = redis.call('INCR', KEYS[3])
local existing = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
if not existing then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
end
local evicted = redis.call('ZREVRANGE', KEYS[1], tonumber(ARGV[3]), -1)
for _, id in ipairs(evicted) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HDEL', KEYS[2], id)
end
if existing then
  return {0, existing}
end
return {1, ARGV[2]}
`)

// KEYS: order zset, records hash. ARGV: identity, record.
var updateScript = goredis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

// Keys names the Redis keys backing the pool.
type Keys struct {
	Order   string // sorted set: identity scored by insertion sequence
	Records string // hash: identity -> encoded record
	Seq     string // counter feeding Order scores
}

// DefaultKeys returns the key layout for the given prefix.
func DefaultKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "cookiepool"
	}
	return Keys{
		Order:   prefix + ":order",
		Records: prefix + ":records",
		Seq:     prefix + ":seq",
	}
}

// CredentialRepo implements CredentialRepository on a Redis sorted set plus hash.
type CredentialRepo struct {
	client *goredis.Client
	keys   Keys
	codec  repository.Codec
	log    *zap.Logger
}

// NewCredentialRepo constructs a Redis-backed credential repository.
func NewCredentialRepo(client *goredis.Client, keys Keys, codec repository.Codec, log *zap.Logger) *CredentialRepo {
	return &CredentialRepo{client: client, keys: keys, codec: codec, log: log}
}

// Add atomically pushes c to the head, deduplicating by identity, and evicts beyond capacity.
func (r *CredentialRepo) Add(ctx context.Context, c model.Credential, capacity int) (model.Credential, bool, error) {
	raw, err := r.codec.Encode(c)
	if err != nil {
		return model.Credential{}, false, err
	}

	res, err := addScript.Run(ctx, r.client,
		[]string{r.keys.Order, r.keys.Records, r.keys.Seq},
		c.Identity, raw, capacity,
	).Slice()
	if err != nil {
		return model.Credential{}, false, fmt.Errorf("redis add credential: %w", err)
	}
	if len(res) != 2 {
		return model.Credential{}, false, fmt.Errorf("redis add credential: unexpected reply %v", res)
	}

	inserted, _ := res[0].(int64)
	if inserted == 1 {
		return c, true, nil
	}

	stored, _ := res[1].(string)
	prev, err := r.codec.Decode(c.Identity, []byte(stored))
	if err != nil {
		r.log.Warn("replacing unreadable credential record",
			zap.String("identity", c.Identity), zap.Error(err))
		if err := r.client.HSet(ctx, r.keys.Records, c.Identity, raw).Err(); err != nil {
			return model.Credential{}, false, fmt.Errorf("redis hset: %w", err)
		}
		return c, true, nil
	}
	return prev, false, nil
}

// List returns readable entries, most recent first.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	return r.list(ctx, r.client)
}

func (r *CredentialRepo) list(ctx context.Context, c goredis.Cmdable) ([]model.Credential, error) {
	ids, err := c.ZRevRange(ctx, r.keys.Order, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	out := make([]model.Credential, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	vals, err := c.HMGet(ctx, r.keys.Records, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.log.Warn("skipping credential without record", zap.String("identity", ids[i]))
			continue
		}
		c, err := r.codec.Decode(ids[i], []byte(s))
		if err != nil {
			if errors.Is(err, repository.ErrUnreadableRecord) {
				r.log.Warn("skipping unreadable credential record",
					zap.String("identity", ids[i]), zap.Error(err))
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Update rewrites the record for c.Identity if it is still pooled.
func (r *CredentialRepo) Update(ctx context.Context, c model.Credential) error {
	raw, err := r.codec.Encode(c)
	if err != nil {
		return err
	}
	n, err := updateScript.Run(ctx, r.client, []string{r.keys.Order, r.keys.Records}, c.Identity, raw).Int()
	if err != nil {
		return fmt.Errorf("redis update credential: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// removeRetries bounds optimistic retries when the pool changes mid-prune.
const removeRetries = 5

// RemoveWhere deletes matching entries by identity. The pool keys are
// watched, so an entry changed after pred saw it is re-evaluated.
func (r *CredentialRepo) RemoveWhere(ctx context.Context, pred func(model.Credential) bool) (int, error) {
	var removed int
	txf := func(tx *goredis.Tx) error {
		removed = 0
		all, err := r.list(ctx, tx)
		if err != nil {
			return err
		}

		var ids []string
		for _, c := range all {
			if pred(c) {
				ids = append(ids, c.Identity)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		var zrem *goredis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			zrem = p.ZRem(ctx, r.keys.Order, members...)
			p.HDel(ctx, r.keys.Records, ids...)
			return nil
		})
		if err != nil {
			return err
		}
		removed = int(zrem.Val())
		return nil
	}

	for i := 0; i < removeRetries; i++ {
		err := r.client.Watch(ctx, txf, r.keys.Order, r.keys.Records)
		if err == nil {
			return removed, nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return 0, fmt.Errorf("redis remove credentials: %w", err)
		}
		r.log.Debug("pool changed during prune, retrying", zap.Int("attempt", i+1))
	}
	return 0, fmt.Errorf("redis remove credentials: %w", goredis.TxFailedErr)
}
