package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/cookiepool/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestNotifier(t *testing.T, q *memQuota, p *fakeProvider, clock *fixedClock, loc *time.Location) *Notifier {
	t.Helper()
	return NewNotifier(q, p, NotifierOptions{MaxPerDay: 2, Location: loc, Now: clock.Now}, zaptest.NewLogger(t))
}

func TestNotifier_DailyCap(t *testing.T) {
	q := &memQuota{}
	p := &fakeProvider{}
	n := newTestNotifier(t, q, p, &fixedClock{t: t0}, time.UTC)

	for i := 0; i < 3; i++ {
		n.ConsiderAlert(context.Background())
	}
	require.Equal(t, 2, p.delivered())
	require.Equal(t, 2, p.attempts)
	require.Equal(t, 2, q.counts["notification:count:2026-10-19"])
	require.Contains(t, p.sent[0].Body, "Only 1 valid cookie")
}

func TestNotifier_FailedSendKeepsQuota(t *testing.T) {
	q := &memQuota{}
	p := &fakeProvider{failures: 1}
	n := newTestNotifier(t, q, p, &fixedClock{t: t0}, time.UTC)

	for i := 0; i < 4; i++ {
		n.ConsiderAlert(context.Background())
	}
	require.Equal(t, 3, p.attempts)
	require.Equal(t, 2, p.delivered())
}

func TestNotifier_NewDayResets(t *testing.T) {
	q := &memQuota{}
	p := &fakeProvider{}
	clock := &fixedClock{t: t0}
	n := newTestNotifier(t, q, p, clock, time.UTC)

	n.ConsiderAlert(context.Background())
	n.ConsiderAlert(context.Background())
	n.ConsiderAlert(context.Background())
	clock.Advance(24 * time.Hour)
	n.ConsiderAlert(context.Background())

	require.Equal(t, 3, p.delivered())
	require.Equal(t, 1, q.counts["notification:count:2026-10-20"])
}

func TestNotifier_DayBoundaryUsesLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	q := &memQuota{}
	p := &fakeProvider{}
	// 17:00 UTC is already the next day at UTC+8.
	clock := &fixedClock{t: time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC)}
	n := newTestNotifier(t, q, p, clock, loc)

	n.ConsiderAlert(context.Background())
	require.Equal(t, []string{"notification:count:2026-10-20"}, q.keys)
}

func TestNotifier_QuotaErrorSkipsSend(t *testing.T) {
	q := &memQuota{err: errors.New("redis down")}
	p := &fakeProvider{}
	n := newTestNotifier(t, q, p, &fixedClock{t: t0}, time.UTC)

	n.ConsiderAlert(context.Background())
	require.Zero(t, p.attempts)
}

func TestNotifier_Disabled(t *testing.T) {
	p := &fakeProvider{}
	NewNotifier(nil, p, NotifierOptions{MaxPerDay: 2}, nil).ConsiderAlert(context.Background())
	NewNotifier(&memQuota{}, nil, NotifierOptions{MaxPerDay: 2}, nil).ConsiderAlert(context.Background())
	require.Zero(t, p.attempts)
}

func TestPoolWithNotifier_ScarcityThreeTimes(t *testing.T) {
	repo := &memRepo{}
	clock := &fixedClock{t: t0}
	log := zaptest.NewLogger(t)
	prober := &fakeProber{result: map[string]model.Validity{"b=1": model.Invalid}}
	provider := &fakeProvider{}

	v := NewValidator(repo, prober, ValidatorOptions{Window: 30 * time.Minute, Now: clock.Now}, log)
	n := NewNotifier(&memQuota{}, provider, NotifierOptions{MaxPerDay: 2, Location: time.UTC, Now: clock.Now}, log)
	svc := NewPoolService(repo, v, n, PoolOptions{Now: clock.Now}, log)

	repo.entries = []model.Credential{
		entry("a=1", t0, model.Unknown, time.Time{}),
		entry("b=1", t0, model.Unknown, time.Time{}),
	}
	for i := 0; i < 3; i++ {
		got, err := svc.Select(context.Background())
		require.NoError(t, err)
		require.Equal(t, "a=1", got)
	}
	svc.Wait()
	require.Equal(t, 2, provider.delivered())
}
