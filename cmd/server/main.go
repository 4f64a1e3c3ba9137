// Command cookiepool-server runs the cookie pool HTTP API and gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/cookiepool/internal/auth"
	"github.com/and161185/cookiepool/internal/config"
	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/limiter"
	"github.com/and161185/cookiepool/internal/logging"
	"github.com/and161185/cookiepool/internal/metrics"
	"github.com/and161185/cookiepool/internal/migrate"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/notify"
	"github.com/and161185/cookiepool/internal/repository"
	"github.com/and161185/cookiepool/internal/repository/postgres"
	"github.com/and161185/cookiepool/internal/repository/redis"
	"github.com/and161185/cookiepool/internal/scheduler"
	grpcserver "github.com/and161185/cookiepool/internal/server/grpc"
	httpserver "github.com/and161185/cookiepool/internal/server/http"
	"github.com/and161185/cookiepool/internal/service"
	"github.com/and161185/cookiepool/internal/wechat"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional .env file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides COOKIEPOOL_HTTP_ADDR)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC listen address (overrides COOKIEPOOL_GRPC_ADDR)")
	dev := flag.Bool("dev", false, "development mode: console logs, gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *dev {
		cfg.Env = "dev"
	}

	logger, err := logging.New(logging.Options{Dev: cfg.Dev(), File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("backend", cfg.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// store bundles the persistence chosen by the backend setting.
type store struct {
	creds repository.CredentialRepository
	quota limiter.Quota
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store, error) {
	sealer, err := crypto.NewSealer(cfg.SecretKey)
	if err != nil {
		return store{}, fmt.Errorf("sealer: %w", err)
	}
	if !sealer.Enabled() && cfg.StoreBackend != config.BackendNone {
		log.Warn("COOKIEPOOL_SECRET_KEY not set, cookies are stored in the clear")
	}
	codec := repository.NewCodec(sealer)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if err := migrate.Up(ctx, cfg.PostgresDSN, log); err != nil {
			return store{}, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return store{}, fmt.Errorf("postgres: %w", err)
		}
		return store{
			creds: postgres.NewCredentialRepo(db, codec, log),
			quota: limiter.NewPGWithQuerier(db.Pool),
			close: db.Close,
		}, nil

	case config.BackendRedis:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			TLSEnabled: cfg.RedisTLS,
		}, log)
		if err != nil {
			return store{}, fmt.Errorf("redis: %w", err)
		}
		return store{
			creds: redis.NewCredentialRepo(client, redis.DefaultKeys(cfg.RedisPrefix), codec, log),
			quota: limiter.NewRedis(client, cfg.RedisPrefix),
			close: func() { _ = client.Close() },
		}, nil

	default:
		log.Warn("no store configured, the pool is inert")
		return store{close: func() {}}, nil
	}
}

func alertProvider(cfg *config.Config, log *zap.Logger) notify.Provider {
	var providers notify.Multi
	if cfg.BarkToken != "" {
		providers = append(providers, notify.NewBarkProvider(cfg.BarkServer, cfg.BarkToken, nil))
	}
	if cfg.SMTPEnabled() {
		providers = append(providers, notify.NewSMTPProvider(notify.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			FromAddr:   cfg.SMTPFrom,
			ToAddrs:    cfg.SMTPTo,
			Encryption: cfg.SMTPEncryption,
		}))
	}
	if len(providers) == 0 {
		log.Warn("no alert channel configured, scarcity alerts are disabled")
		return nil
	}
	return providers
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	authSrc := wechat.NewAuthSource(model.AuthInfo{Token: cfg.WeChatToken, Fingerprint: cfg.WeChatFingerprint})
	client := wechat.NewClient(authSrc, wechat.Options{
		BaseURL:      cfg.WeChatBaseURL,
		ProbeAccount: cfg.ProbeAccount,
		Timeout:      cfg.ProbeTimeout,
	}, log.Named("wechat"))

	validator := service.NewValidator(st.creds, client, service.ValidatorOptions{
		Window:  cfg.ValidityWindow,
		Timeout: cfg.ProbeTimeout,
		Metrics: m,
	}, log.Named("validator"))

	var alerter service.Alerter
	if p := alertProvider(cfg, log); p != nil && st.quota != nil {
		alerter = service.NewNotifier(st.quota, p, service.NotifierOptions{
			MaxPerDay: cfg.MaxDailyAlerts,
			Location:  loc,
			Timeout:   cfg.AlertTimeout,
			Metrics:   m,
		}, log.Named("notifier"))
	}

	pool := service.NewPoolService(st.creds, validator, alerter, service.PoolOptions{
		Capacity:     cfg.PoolCapacity,
		AlertTimeout: cfg.AlertTimeout,
		Metrics:      m,
	}, log.Named("pool"))

	fans := service.NewFansService(pool, client, authSrc, log.Named("fans"))

	tokens := auth.NewTokens([]byte(cfg.AdminJWTKey), 0)
	if !tokens.Enabled() {
		log.Warn("COOKIEPOOL_ADMIN_JWT_KEY not set, admin routes reject every request")
	}

	grpcSrv, err := grpcserver.New(grpcserver.Options{
		CertFile: cfg.GRPCTLSCert,
		KeyFile:  cfg.GRPCTLSKey,
		Dev:      cfg.Dev(),
		Tokens:   tokens,
	}, log.Named("grpc"))
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Pool:     pool,
		Interval: cfg.MetricsRefresh,
		Report:   grpcSrv.ReportPool,
		Logger:   log.Named("scheduler"),
	})
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop", zap.Error(err))
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPAddr, httpserver.Deps{
		Pool:     pool,
		Fans:     fans,
		Tokens:   tokens,
		Gatherer: reg,
		Log:      log.Named("http"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Run(ctx) }()
	go func() { errCh <- grpcSrv.Run(ctx, cfg.GRPCAddr) }()

	// The first server to return stops the other.
	first := <-errCh
	cancel()
	second := <-errCh

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	waitAlerts(shutdownCtx, pool)

	if first != nil {
		return first
	}
	return second
}

// waitAlerts waits for in-flight scarcity alerts, giving up when ctx ends.
func waitAlerts(ctx context.Context, pool *service.PoolServiceImpl) {
	ch := make(chan struct{})
	go func() {
		pool.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-ctx.Done():
	}
}
