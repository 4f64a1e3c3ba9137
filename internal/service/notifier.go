package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/cookiepool/internal/limiter"
	"github.com/and161185/cookiepool/internal/metrics"
	"github.com/and161185/cookiepool/internal/notify"
	"go.uber.org/zap"
)

// Alerter is told when the pool is down to its last valid credential.
type Alerter interface {
	ConsiderAlert(ctx context.Context)
}

const alertKeyPrefix = "notification:count:"

// Notifier sends at most Max scarcity alerts per calendar day.
type Notifier struct {
	quota    limiter.Quota
	provider notify.Provider
	max      int
	loc      *time.Location
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	MaxPerDay int
	Location  *time.Location
	TTL       time.Duration
	Timeout   time.Duration
	Now       func() time.Time
	Metrics   *metrics.Metrics
}

// NewNotifier constructs a Notifier. A nil quota or provider disables alerts.
func NewNotifier(quota limiter.Quota, provider notify.Provider, opts NotifierOptions, log *zap.Logger) *Notifier {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		quota:    quota,
		provider: provider,
		max:      opts.MaxPerDay,
		loc:      opts.Location,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		now:      opts.Now,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// ConsiderAlert sends one alert unless today's quota is used up.
// A failed delivery gives its reservation back. Errors are logged only.
func (n *Notifier) ConsiderAlert(ctx context.Context) {
	if n.quota == nil || n.provider == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().In(n.loc)
	key := alertKeyPrefix + now.Format("2006-01-02")

	ok, err := n.quota.Reserve(ctx, key, n.max, n.ttl)
	if err != nil {
		n.log.Warn("alert quota", zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		n.metrics.ObserveAlert(metrics.AlertSuppressed)
		n.log.Info("daily alert limit reached", zap.String("key", key), zap.Int("max", n.max))
		return
	}

	sctx, cancel := context.WithTimeout(ctx, n.timeout)
	err = n.provider.Send(sctx, n.message(now))
	cancel()
	if err != nil {
		n.metrics.ObserveAlert(metrics.AlertFailed)
		n.log.Error("send alert", zap.String("provider", n.provider.Name()), zap.Error(err))
		if rerr := n.quota.Release(ctx, key); rerr != nil {
			n.log.Warn("release alert quota", zap.String("key", key), zap.Error(rerr))
		}
		return
	}
	n.metrics.ObserveAlert(metrics.AlertSent)
	n.log.Info("scarcity alert sent", zap.String("provider", n.provider.Name()))
}

func (n *Notifier) message(now time.Time) notify.Message {
	return notify.Message{
		Subject: "Cookie pool almost exhausted",
		Body: fmt.Sprintf("Only 1 valid cookie is left for the fans query API. Add a fresh cookie soon.\n\nTime: %s",
			now.Format("2006-01-02 15:04:05 MST")),
	}
}
