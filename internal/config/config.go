// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the reward service's runtime configuration.
type Config struct {
	Addr string `env:"REWARD_ADDR" envDefault:":8080"`

	// DBDriver is "sqlite" or "postgres".
	DBDriver    string `env:"REWARD_DB_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"REWARD_DB_PATH" envDefault:"rewards.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// PresetsPath is an optional YAML file of extra games.
	PresetsPath string `env:"REWARD_PRESETS"`

	KeyringService  string `env:"REWARD_KEYRING_SERVICE" envDefault:"coin-reward-engine"`
	KeyringFallback string `env:"REWARD_KEYRING_FALLBACK" envDefault:"fallback_secrets.json"`

	LogLevel  string `env:"REWARD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"REWARD_LOG_FORMAT" envDefault:"json"`

	WelcomeBonus   int64         `env:"REWARD_WELCOME_BONUS" envDefault:"1000"`
	CORSOrigins    []string      `env:"REWARD_CORS_ORIGINS" envSeparator:","`
	RequestTimeout time.Duration `env:"REWARD_REQUEST_TIMEOUT" envDefault:"60s"`
	SimWorkers     int           `env:"REWARD_SIM_WORKERS" envDefault:"0"`
}

// Load reads dotenv (if present) and then the environment. Values already
// in the environment win over the dotenv file.
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("config: REWARD_DB_PATH is required for sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown db driver %q", c.DBDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.WelcomeBonus < 0 {
		return errors.New("config: welcome bonus must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request timeout must be positive")
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
