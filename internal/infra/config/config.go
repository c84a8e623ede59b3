package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string `env:"TELEGRAM_TOKEN"`
	DatabaseDriver  string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL,required"`
	AdminTelegramID int64  `env:"ADMIN_TELEGRAM_ID,required"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	Environment     string `env:"ENVIRONMENT" envDefault:"development"`

	// Log file rotation; file output is off when LogFile is empty.
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
	LogCompress   bool   `env:"LOG_COMPRESS" envDefault:"true"`

	TickSpec    string        `env:"TICK_SPEC" envDefault:"@every 60s"`
	TickTimeout time.Duration `env:"TICK_TIMEOUT" envDefault:"5m"`
	TickLockTTL time.Duration `env:"TICK_LOCK_TTL" envDefault:"10m"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMultiplier  float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"60s"`

	MetricsWindow   int    `env:"METRICS_WINDOW" envDefault:"7"`
	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"Asia/Kolkata"`

	// Redis is optional; without it the engine lease is process-local.
	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: expected postgres or sqlite3", cfg.DatabaseDriver)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.MetricsWindow < 1 {
		return nil, fmt.Errorf("METRICS_WINDOW must be at least 1")
	}
	return cfg, nil
}

// RequireTelegram fails when the bot token is missing. Commands that only
// touch the database (migrate, seed) do not need it.
func (c *AppConfig) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is not set")
	}
	return nil
}
