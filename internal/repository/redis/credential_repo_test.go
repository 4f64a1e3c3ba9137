package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
)

func newTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return client, server
}

func newRepo(t *testing.T) (*CredentialRepo, *miniredis.Miniredis) {
	t.Helper()
	client, server := newTestRedis(t)
	sealer, err := crypto.NewSealer("test-secret")
	require.NoError(t, err)
	return NewCredentialRepo(client, DefaultKeys("test"), repository.NewCodec(sealer), zaptest.NewLogger(t)), server
}

func cred(value string, created int64) model.Credential {
	return model.Credential{
		Value:     value,
		Identity:  crypto.Identity(value),
		CreatedAt: time.UnixMilli(created),
	}
}

func values(cs []model.Credential) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Value
	}
	return out
}

func TestCredentialRepo_AddAndList_Order(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, inserted, err := r.Add(ctx, cred(fmt.Sprintf("c=%d", i), int64(i)), 6)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c=3", "c=2", "c=1"}, values(got))
}

func TestCredentialRepo_Add_EvictsOldest(t *testing.T) {
	r, server := newRepo(t)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		_, _, err := r.Add(ctx, cred(fmt.Sprintf("c=%d", i), int64(i)), 6)
		require.NoError(t, err)
	}

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c=8", "c=7", "c=6", "c=5", "c=4", "c=3"}, values(got))

	keys, err := server.HKeys("test:records")
	require.NoError(t, err)
	require.Len(t, keys, 6)
}

func TestCredentialRepo_Add_DedupRefreshesPositionKeepsState(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	a := cred("a=1", 1)
	_, _, err := r.Add(ctx, a, 6)
	require.NoError(t, err)
	_, _, err = r.Add(ctx, cred("b=2", 2), 6)
	require.NoError(t, err)

	a.Validity = model.Valid
	a.LastCheckedAt = time.UnixMilli(50)
	require.NoError(t, r.Update(ctx, a))

	again := cred("a=1", 99)
	stored, inserted, err := r.Add(ctx, again, 6)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, model.Valid, stored.Validity)
	require.Equal(t, int64(1), stored.CreatedAt.UnixMilli())

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a=1", "b=2"}, values(got))
	require.Equal(t, model.Valid, got[0].Validity)
}

func TestCredentialRepo_List_SkipsUnreadable(t *testing.T) {
	r, server := newRepo(t)
	ctx := context.Background()

	_, _, err := r.Add(ctx, cred("a=1", 1), 6)
	require.NoError(t, err)
	_, _, err = r.Add(ctx, cred("b=2", 2), 6)
	require.NoError(t, err)

	_, err = server.ZAdd("test:order", 100, "broken")
	require.NoError(t, err)
	server.HSet("test:records", "broken", "{not json")
	_, err = server.ZAdd("test:order", 101, "orphan")
	require.NoError(t, err)

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b=2", "a=1"}, values(got))
}

func TestCredentialRepo_Update_MissingIdentity(t *testing.T) {
	r, server := newRepo(t)
	ctx := context.Background()

	err := r.Update(ctx, cred("gone=1", 1))
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.False(t, server.Exists("test:records"))
}

func TestCredentialRepo_RemoveWhere(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		c := cred(fmt.Sprintf("c=%d", i), int64(i))
		_, _, err := r.Add(ctx, c, 6)
		require.NoError(t, err)
		if i%2 == 0 {
			c.Validity = model.Invalid
			c.LastCheckedAt = time.UnixMilli(10)
			require.NoError(t, r.Update(ctx, c))
		}
	}

	n, err := r.RemoveWhere(ctx, func(c model.Credential) bool { return c.Validity == model.Invalid })
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c=3", "c=1"}, values(got))

	n, err = r.RemoveWhere(ctx, func(c model.Credential) bool { return c.Validity == model.Invalid })
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCredentialRepo_RemoveWhere_RevalidatedMidPruneSurvives(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	c := cred("a=1", 1)
	_, _, err := r.Add(ctx, c, 6)
	require.NoError(t, err)
	c.Validity = model.Invalid
	c.LastCheckedAt = time.UnixMilli(10)
	require.NoError(t, r.Update(ctx, c))

	flipped := false
	n, err := r.RemoveWhere(ctx, func(got model.Credential) bool {
		if !flipped {
			flipped = true
			ok := got
			ok.Validity = model.Valid
			ok.LastCheckedAt = time.UnixMilli(20)
			require.NoError(t, r.Update(ctx, ok))
		}
		return got.Validity == model.Invalid
	})
	require.NoError(t, err)
	require.Zero(t, n)

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, model.Valid, all[0].Validity)
}

func TestCredentialRepo_ValuesSealedAtRest(t *testing.T) {
	r, server := newRepo(t)
	c := cred("slave_sid=topsecret", 1)
	_, _, err := r.Add(context.Background(), c, 6)
	require.NoError(t, err)

	raw := server.HGet("test:records", c.Identity)
	require.NotEmpty(t, raw)
	require.NotContains(t, raw, "topsecret")
}
