// Package scheduler runs periodic pool maintenance with gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/and161185/cookiepool/internal/model"
)

// StatusSource reports the current pool counts.
type StatusSource interface {
	Status(ctx context.Context) (model.PoolStatus, error)
}

// Config holds the scheduler configuration.
type Config struct {
	Pool     StatusSource
	Interval time.Duration
	Timeout  time.Duration
	// Report receives every successful refresh. It is optional.
	Report   func(model.PoolStatus)
	Logger   *zap.Logger
}

// Scheduler refreshes pool-derived state (the metrics gauge and gRPC health)
// on a fixed interval.
type Scheduler struct {
	cron gocron.Scheduler
	cfg  Config
	log  *zap.Logger
}

// New creates a Scheduler. Call Start to begin running jobs.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("scheduler: nil status source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Scheduler{cron: cron, cfg: cfg, log: cfg.Logger}, nil
}

// Start schedules the refresh job, runs it once immediately and starts the
// gocron scheduler.
func (s *Scheduler) Start() error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(s.Refresh),
		gocron.WithName("pool-status"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduling pool refresh: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop shuts down the gocron scheduler and waits for running jobs.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// Refresh reads the pool status once and hands it to Report.
func (s *Scheduler) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	st, err := s.cfg.Pool.Status(ctx)
	if err != nil {
		s.log.Warn("pool status refresh", zap.Error(err))
		return
	}
	if s.cfg.Report != nil {
		s.cfg.Report(st)
	}
	s.log.Debug("pool status refreshed",
		zap.Int("total", st.Total),
		zap.Int("valid", st.Valid),
		zap.Int("invalid", st.Invalid),
		zap.Int("unknown", st.Unknown),
	)
}
