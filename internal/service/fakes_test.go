package service

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/limiter"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/notify"
	"github.com/and161185/cookiepool/internal/repository"
)

// memRepo keeps the pool head-first in memory.
type memRepo struct {
	mu      sync.Mutex
	entries []model.Credential

	addErr    error
	listErr   error
	updateErr error
	removeErr error

	updates int
}

var _ repository.CredentialRepository = (*memRepo)(nil)

func (r *memRepo) Add(_ context.Context, c model.Credential, capacity int) (model.Credential, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return model.Credential{}, false, r.addErr
	}
	for i, e := range r.entries {
		if e.Identity == c.Identity {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.entries = append([]model.Credential{e}, r.entries...)
			return e, false, nil
		}
	}
	r.entries = append([]model.Credential{c}, r.entries...)
	if len(r.entries) > capacity {
		r.entries = r.entries[:capacity]
	}
	return c, true, nil
}

func (r *memRepo) List(context.Context) ([]model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]model.Credential(nil), r.entries...), nil
}

func (r *memRepo) Update(_ context.Context, c model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	for i, e := range r.entries {
		if e.Identity == c.Identity {
			r.entries[i].Validity = c.Validity
			r.entries[i].LastCheckedAt = c.LastCheckedAt
			return nil
		}
	}
	return errs.ErrNotFound
}

func (r *memRepo) RemoveWhere(_ context.Context, pred func(model.Credential) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeErr != nil {
		return 0, r.removeErr
	}
	kept := r.entries[:0]
	n := 0
	for _, e := range r.entries {
		if pred(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (r *memRepo) get(identity string) (model.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Identity == identity {
			return e, true
		}
	}
	return model.Credential{}, false
}

func entry(value string, created time.Time, v model.Validity, checked time.Time) model.Credential {
	return model.Credential{
		Value:         value,
		Identity:      crypto.Identity(value),
		CreatedAt:     created,
		Validity:      v,
		LastCheckedAt: checked,
	}
}

// fakeProber answers from a per-cookie table; missing cookies are Valid.
type fakeProber struct {
	mu     sync.Mutex
	result map[string]model.Validity
	err    error
	calls  map[string]int
}

func (p *fakeProber) Probe(_ context.Context, cookie string) (model.Validity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[cookie]++
	if p.err != nil {
		return model.Unknown, p.err
	}
	if v, ok := p.result[cookie]; ok {
		return v, nil
	}
	return model.Valid, nil
}

func (p *fakeProber) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// memQuota is an in-memory limiter.Quota without expiry.
type memQuota struct {
	mu     sync.Mutex
	counts map[string]int
	keys   []string
	err    error
}

var _ limiter.Quota = (*memQuota)(nil)

func (q *memQuota) Used(_ context.Context, key string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key], q.err
}

func (q *memQuota) Reserve(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false, q.err
	}
	if q.counts == nil {
		q.counts = map[string]int{}
	}
	q.keys = append(q.keys, key)
	if q.counts[key] >= limit {
		return false, nil
	}
	q.counts[key]++
	return true, nil
}

func (q *memQuota) Release(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.counts[key] > 0 {
		q.counts[key]--
	}
	return nil
}

// fakeProvider fails the first `failures` sends.
type fakeProvider struct {
	mu       sync.Mutex
	failures int
	sent     []notify.Message
	attempts int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures > 0 {
		p.failures--
		return errDelivery
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProvider) delivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// countingAlerter records scarcity signals.
type countingAlerter struct {
	mu sync.Mutex
	n  int
}

func (a *countingAlerter) ConsiderAlert(context.Context) {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *countingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

type deliveryError struct{}

func (deliveryError) Error() string { return "delivery failed" }

var errDelivery error = deliveryError{}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
