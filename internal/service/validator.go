package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/metrics"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
	"go.uber.org/zap"
)

// Prober checks whether a cookie still opens a session on the remote backend.
// It returns errs.ErrProbeUnconfigured when it cannot run at all; any
// other outcome is a classification.
type Prober interface {
	Probe(ctx context.Context, cookie string) (model.Validity, error)
}

// Validator re-validates pooled credentials, trusting a previous result
// for the duration of the validity window.
type Validator struct {
	repo    repository.CredentialRepository
	prober  Prober
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	Window  time.Duration
	Timeout time.Duration
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// NewValidator constructs a Validator. repo may be nil.
func NewValidator(repo repository.CredentialRepository, prober Prober, opts ValidatorOptions, log *zap.Logger) *Validator {
	if opts.Window < 0 {
		opts.Window = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		repo:    repo,
		prober:  prober,
		window:  opts.Window,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     log,
		metrics: opts.Metrics,
	}
}

// EnsureValidated returns c's validity, probing it first when the last
// check is older than the window. c is updated in place and persisted.
// Probe failures classify as Invalid. If the probe cannot run, c is left
// untouched and a stale Valid result is reported as Unknown.
func (v *Validator) EnsureValidated(ctx context.Context, c *model.Credential) model.Validity {
	now := v.now()
	if c.Checked() && now.Sub(c.LastCheckedAt) < v.window {
		return c.Validity
	}
	if v.prober == nil {
		return c.Validity
	}

	// The probe runs to its own timeout even if the caller goes away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	res, err := v.prober.Probe(pctx, c.Value)
	cancel()

	switch {
	case errors.Is(err, errs.ErrProbeUnconfigured):
		v.log.Debug("probe skipped", zap.String("identity", c.Identity))
		// A stale Valid result is only a fallback; the stored entry is untouched.
		if c.Validity == model.Valid {
			return model.Unknown
		}
		return c.Validity
	case err != nil || res != model.Valid:
		res = model.Invalid
	}
	v.metrics.ObserveProbe(res)

	c.Validity = res
	c.LastCheckedAt = now

	if v.repo != nil {
		if err := v.repo.Update(context.WithoutCancel(ctx), *c); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				v.log.Debug("credential evicted before update", zap.String("identity", c.Identity))
			} else {
				v.log.Warn("persist validation", zap.String("identity", c.Identity), zap.Error(err))
			}
		}
	}
	v.log.Info("credential probed",
		zap.String("identity", c.Identity),
		zap.Stringer("validity", res),
	)
	return res
}
