// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. COOKIEPOOL_HTTP_ADDR.
const Prefix = "COOKIEPOOL"

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Config holds all settings for cmd/server.
type Config struct {
	Env      string `envconfig:"ENV" default:"prod"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`
	LogFile  string `envconfig:"LOG_FILE"`

	GRPCTLSCert string `envconfig:"GRPC_TLS_CERT"`
	GRPCTLSKey  string `envconfig:"GRPC_TLS_KEY"`

	StoreBackend  string `envconfig:"STORE_BACKEND" default:"none"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisTLS      bool   `envconfig:"REDIS_TLS" default:"false"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"cookiepool"`

	PoolCapacity   int           `envconfig:"POOL_CAPACITY" default:"6"`
	ValidityWindow time.Duration `envconfig:"VALIDITY_WINDOW" default:"30m"`
	ProbeTimeout   time.Duration `envconfig:"PROBE_TIMEOUT" default:"30s"`
	ProbeAccount   string        `envconfig:"PROBE_ACCOUNT"`

	WeChatBaseURL     string `envconfig:"WECHAT_BASE_URL" default:"https://mp.weixin.qq.com"`
	WeChatToken       string `envconfig:"WECHAT_TOKEN"`
	WeChatFingerprint string `envconfig:"WECHAT_FINGERPRINT"`

	SecretKey   string `envconfig:"SECRET_KEY"`
	AdminJWTKey string `envconfig:"ADMIN_JWT_KEY"`

	MaxDailyAlerts int           `envconfig:"MAX_DAILY_ALERTS" default:"2"`
	AlertTimezone  string        `envconfig:"ALERT_TIMEZONE" default:"Asia/Shanghai"`
	AlertTimeout   time.Duration `envconfig:"ALERT_TIMEOUT" default:"10s"`
	BarkToken      string        `envconfig:"BARK_TOKEN"`
	BarkServer     string        `envconfig:"BARK_SERVER" default:"https://api.day.app"`

	SMTPHost       string `envconfig:"SMTP_HOST"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername   string `envconfig:"SMTP_USERNAME"`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom       string `envconfig:"SMTP_FROM"`
	SMTPTo         string `envconfig:"SMTP_TO"`
	SMTPEncryption string `envconfig:"SMTP_ENCRYPTION" default:"starttls"`

	MetricsRefresh time.Duration `envconfig:"METRICS_REFRESH" default:"1m"`
}

// Load reads envFile (if it exists) and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres backend requires POSTGRES_DSN")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis backend requires REDIS_ADDR")
		}
	case BackendNone, "":
		c.StoreBackend = BackendNone
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("pool capacity must be positive, got %d", c.PoolCapacity)
	}
	if c.ValidityWindow < 0 || c.ProbeTimeout <= 0 {
		return errors.New("validity window must not be negative and probe timeout must be positive")
	}
	if c.MaxDailyAlerts < 0 {
		return fmt.Errorf("max daily alerts must not be negative, got %d", c.MaxDailyAlerts)
	}
	if (c.GRPCTLSCert == "") != (c.GRPCTLSKey == "") {
		return errors.New("GRPC_TLS_CERT and GRPC_TLS_KEY must be set together")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Dev reports whether the process runs in development mode.
func (c *Config) Dev() bool { return c.Env == "dev" }

// Location resolves AlertTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AlertTimezone)
	if err != nil {
		return nil, fmt.Errorf("alert timezone: %w", err)
	}
	return loc, nil
}

// SMTPEnabled reports whether enough SMTP settings exist to send mail.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.SMTPTo != ""
}
