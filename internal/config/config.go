package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const MinAuthSecretLength = 32

type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret        string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"168h"`
	LoginMaxAttempts  int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	LoginLockDuration time.Duration `envconfig:"LOGIN_LOCK_DURATION" default:"2h"`

	InvoiceDueDays    int             `envconfig:"INVOICE_DUE_DAYS" default:"30"`
	DefaultTaxRate    decimal.Decimal `envconfig:"DEFAULT_TAX_RATE" default:"19"`
	DashboardCacheTTL time.Duration   `envconfig:"DASHBOARD_CACHE_TTL" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.InvoiceDueDays < 0 {
		return Config{}, errors.New("INVOICE_DUE_DAYS must not be negative")
	}
	if cfg.LoginMaxAttempts < 1 {
		cfg.LoginMaxAttempts = 5
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// ValidateAuth reports whether the signing secret is usable for serving.
func (c Config) ValidateAuth() error {
	if c.AuthSecret == "" {
		return errors.New("AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < MinAuthSecretLength {
		return fmt.Errorf("AUTH_SECRET must be at least %d characters", MinAuthSecretLength)
	}
	return nil
}
