// Package service contains the credential pool and the fans query built on it.
package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/logging"
	"github.com/and161185/cookiepool/internal/metrics"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
	"go.uber.org/zap"
)

// DefaultCapacity is the pool size used when none is configured.
const DefaultCapacity = 6

// PoolService manages the rotating cookie pool.
type PoolService interface {
	// Add pools value and reports whether it was new.
	Add(ctx context.Context, value string) (bool, error)
	// Select returns a usable cookie or errs.ErrNoneAvailable.
	Select(ctx context.Context) (string, error)
	// Status counts pooled cookies by validity without probing.
	Status(ctx context.Context) (model.PoolStatus, error)
	// Details lists pooled cookies, most recent first, without raw values.
	Details(ctx context.Context) ([]model.CredentialDetail, error)
	// PruneInvalid drops every cookie classified Invalid.
	PruneInvalid(ctx context.Context) (int, error)
}

// PoolOptions configures a pool service.
type PoolOptions struct {
	Capacity     int
	AlertTimeout time.Duration
	Now          func() time.Time
	Metrics      *metrics.Metrics
}

// PoolServiceImpl is the PoolService backed by a CredentialRepository.
type PoolServiceImpl struct {
	repo         repository.CredentialRepository
	validator    *Validator
	alerter      Alerter
	capacity     int
	alertTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
	metrics      *metrics.Metrics

	alerts sync.WaitGroup
}

var _ PoolService = (*PoolServiceImpl)(nil)

// NewPoolService constructs the pool. A nil repo makes the pool inert:
// nothing is stored and Select always reports ErrNoneAvailable.
func NewPoolService(repo repository.CredentialRepository, v *Validator, a Alerter, opts PoolOptions, log *zap.Logger) *PoolServiceImpl {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.AlertTimeout <= 0 {
		opts.AlertTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolServiceImpl{
		repo:         repo,
		validator:    v,
		alerter:      a,
		capacity:     opts.Capacity,
		alertTimeout: opts.AlertTimeout,
		now:          opts.Now,
		log:          log,
		metrics:      opts.Metrics,
	}
}

// Add inserts value at the head of the pool, or refreshes an existing
// entry with the same identity. Storage failures are logged and reported
// as not inserted.
func (s *PoolServiceImpl) Add(ctx context.Context, value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, errs.ErrEmptyCredential
	}
	if s.repo == nil {
		s.log.Debug("pool inert, add ignored")
		return false, nil
	}

	c := model.Credential{
		Value:     value,
		Identity:  crypto.Identity(value),
		CreatedAt: s.now(),
		Validity:  model.Unknown,
	}
	stored, inserted, err := s.repo.Add(ctx, c, s.capacity)
	if err != nil {
		s.log.Error("add credential", zap.String("identity", c.Identity), zap.Error(err))
		return false, nil
	}
	s.metrics.ObserveAdd(inserted)
	s.log.Info("credential added",
		zap.String("identity", stored.Identity),
		zap.Bool("inserted", inserted),
		zap.Stringer("validity", stored.Validity),
	)
	return inserted, nil
}

// Select validates every pooled cookie and picks one: the oldest valid
// cookie if any, otherwise the newest never-validated one. When exactly
// one valid cookie remains the alerter is notified in the background.
func (s *PoolServiceImpl) Select(ctx context.Context) (string, error) {
	all := s.list(ctx)
	if len(all) == 0 {
		s.metrics.ObserveSelection(metrics.OutcomeNone)
		return "", errs.ErrNoneAvailable
	}

	var valid, unknown []model.Credential
	for i := range all {
		c := &all[i]
		switch s.validate(ctx, c) {
		case model.Valid:
			valid = append(valid, *c)
		case model.Unknown:
			unknown = append(unknown, *c)
		}
	}

	if len(valid) > 0 {
		sort.SliceStable(valid, func(i, j int) bool { return valid[i].CreatedAt.Before(valid[j].CreatedAt) })
		if len(valid) == 1 {
			s.raiseScarcity(ctx)
		}
		s.metrics.ObserveSelection(metrics.OutcomeValid)
		s.log.Debug("selected valid credential", zap.String("identity", valid[0].Identity), zap.Int("valid", len(valid)))
		return valid[0].Value, nil
	}
	if len(unknown) > 0 {
		sort.SliceStable(unknown, func(i, j int) bool { return unknown[i].CreatedAt.After(unknown[j].CreatedAt) })
		s.metrics.ObserveSelection(metrics.OutcomeUnknown)
		s.log.Debug("selected unvalidated credential", zap.String("identity", unknown[0].Identity))
		return unknown[0].Value, nil
	}

	s.metrics.ObserveSelection(metrics.OutcomeNone)
	s.log.Warn("no usable credential", zap.Int("pooled", len(all)))
	return "", errs.ErrNoneAvailable
}

// Status counts pooled cookies by their stored validity.
func (s *PoolServiceImpl) Status(ctx context.Context) (model.PoolStatus, error) {
	var st model.PoolStatus
	for _, c := range s.list(ctx) {
		st.Total++
		switch c.Validity {
		case model.Valid:
			st.Valid++
		case model.Invalid:
			st.Invalid++
		default:
			st.Unknown++
		}
	}
	s.metrics.SetPool(st)
	return st, nil
}

// Details returns the display view of every pooled cookie.
func (s *PoolServiceImpl) Details(ctx context.Context) ([]model.CredentialDetail, error) {
	all := s.list(ctx)
	out := make([]model.CredentialDetail, 0, len(all))
	for i, c := range all {
		d := model.CredentialDetail{
			Index:     i,
			Identity:  c.Identity,
			Validity:  c.Validity,
			CreatedAt: c.CreatedAt,
			Length:    len(c.Value),
			Preview:   Preview(c.Value),
		}
		if c.Checked() {
			t := c.LastCheckedAt
			d.LastCheckedAt = &t
		}
		out = append(out, d)
	}
	return out, nil
}

// PruneInvalid removes every cookie classified Invalid.
func (s *PoolServiceImpl) PruneInvalid(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	n, err := s.repo.RemoveWhere(ctx, func(c model.Credential) bool { return c.Validity == model.Invalid })
	if err != nil {
		s.log.Error("prune invalid", zap.Error(err))
		return 0, nil
	}
	s.metrics.ObservePruned(n)
	s.log.Info("pruned invalid credentials", zap.Int("removed", n))
	return n, nil
}

// Wait blocks until background alerts finish.
func (s *PoolServiceImpl) Wait() { s.alerts.Wait() }

func (s *PoolServiceImpl) list(ctx context.Context) []model.Credential {
	if s.repo == nil {
		return nil
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("list credentials", zap.Error(err))
		return nil
	}
	return all
}

func (s *PoolServiceImpl) validate(ctx context.Context, c *model.Credential) model.Validity {
	if s.validator == nil {
		return c.Validity
	}
	return s.validator.EnsureValidated(ctx, c)
}

func (s *PoolServiceImpl) raiseScarcity(ctx context.Context) {
	if s.alerter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.alertTimeout)
	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		defer cancel()
		s.alerter.ConsiderAlert(actx)
	}()
}

// previewKeys are the cookie fields shown in Details.
var previewKeys = map[string]bool{
	"data_ticket":  true,
	"slave_user":   true,
	"bizuin":       true,
	"slave_bizuin": true,
	"xid":          true,
	"wxuin":        true,
}

// secretKeys are masked in previews.
var secretKeys = map[string]bool{
	"data_ticket": true,
	"xid":         true,
}

// Preview extracts the identifying fields of a cookie header value.
func Preview(cookie string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(cookie, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !previewKeys[k] {
			continue
		}
		if secretKeys[k] {
			v = logging.Mask(v)
		}
		out[k] = v
	}
	return out
}

// IsNoneAvailable reports whether err means the pool has nothing to offer.
func IsNoneAvailable(err error) bool { return errors.Is(err, errs.ErrNoneAvailable) }
