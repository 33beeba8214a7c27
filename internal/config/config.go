// Package config reads the server and historian settings from the environment.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

var ErrMissingSigningKey = errors.New("EXPLORERS_SIGNING_KEY_SEED is required in production")

// Config is shared by cmd/server and cmd/historian.
type Config struct {
	Env       string `env:"EXPLORERS_ENV" envDefault:"development"`
	Addr      string `env:"EXPLORERS_ADDR" envDefault:":8080"`
	PublicURL string `env:"EXPLORERS_PUBLIC_URL" envDefault:"http://localhost:8080"`

	LogLevel  string `env:"EXPLORERS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EXPLORERS_LOG_FORMAT" envDefault:"text"`

	DBDriver    string `env:"EXPLORERS_DB_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"EXPLORERS_SQLITE_PATH" envDefault:"explorers.db"`

	RedisAddr  string `env:"REDIS_ADDR"`
	RedisDB    int    `env:"REDIS_DB" envDefault:"0"`
	EventQueue string `env:"EXPLORERS_EVENT_QUEUE" envDefault:"explorers_entity_events"`

	AccessTokenTTL  time.Duration `env:"EXPLORERS_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"EXPLORERS_REFRESH_TOKEN_TTL" envDefault:"720h"`
	SigningKeySeed  string        `env:"EXPLORERS_SIGNING_KEY_SEED"`

	AllowedOrigins []string `env:"EXPLORERS_ALLOWED_ORIGINS" envSeparator:","`
	ChatHistory    int      `env:"EXPLORERS_CHAT_HISTORY" envDefault:"50"`
	CatalogPath    string   `env:"EXPLORERS_CATALOG_PATH"`

	HistorianBatchSize  int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlushDelay time.Duration `env:"HISTORIAN_FLUSH_DELAY" envDefault:"500ms"`

	OTelEndpoint string `env:"EXPLORERS_OTEL_ENDPOINT"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Seed(); err != nil {
		return Config{}, err
	}
	// Generated keys would log every user out on restart.
	if cfg.IsProduction() && cfg.SigningKeySeed == "" {
		return Config{}, ErrMissingSigningKey
	}
	return cfg, nil
}

// DSN is the connection string for the configured database driver.
func (c Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// Seed decodes the ed25519 signing key seed. An empty seed means tokens are
// signed with a key generated at start-up.
func (c Config) Seed() ([]byte, error) {
	if c.SigningKeySeed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(c.SigningKeySeed)
	if err != nil {
		return nil, fmt.Errorf("EXPLORERS_SIGNING_KEY_SEED: %w", err)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("EXPLORERS_SIGNING_KEY_SEED: want 32 bytes, got %d", len(seed))
	}
	return seed, nil
}

// IsProduction reports whether EXPLORERS_ENV is "production".
func (c Config) IsProduction() bool { return c.Env == "production" }

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithField("level", c.LogLevel).Warn("unknown log level, using info")
	}
	logger.SetLevel(level)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
