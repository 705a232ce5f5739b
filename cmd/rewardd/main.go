// Command rewardd serves the reward engine over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MJE43/coin-reward-engine/internal/api"
	"github.com/MJE43/coin-reward-engine/internal/config"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// Set at build time via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	dotenv := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := run(*dotenv); err != nil {
		fmt.Fprintf(os.Stderr, "rewardd: %v\n", err)
		os.Exit(1)
	}
}

func run(dotenv string) error {
	cfg, err := config.Load(dotenv)
	if err != nil {
		return err
	}

	api.EngineVersion, api.GitCommit, api.BuildTime = version, gitCommit, buildTime
	simulate.EngineVersion = version

	logger := newLogger(cfg)
	log.Logger = logger.With().Str("component", "scripting").Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if cfg.PresetsPath != "" {
		loaded, err := games.LoadPresets(cfg.PresetsPath)
		if err != nil {
			return err
		}
		for _, g := range loaded {
			if err := games.Register(g); err != nil {
				return err
			}
		}
		logger.Info().Str("path", cfg.PresetsPath).Int("games", len(loaded)).Msg("presets_loaded")
	}

	vault := seedvault.New(cfg.KeyringService, cfg.KeyringFallback)

	server := api.NewServer(db, vault, logger, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		WelcomeBonus:   cfg.WelcomeBonus,
		SimWorkers:     cfg.SimWorkers,
	})

	serveErr := make(chan error, 1)
	if err := server.Start(cfg.Addr, serveErr); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown_requested")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("shutdown_complete")
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Str("service", "rewardd").Logger()
}

func openStore(ctx context.Context, cfg config.Config) (store.DB, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "postgres":
		return store.NewPostgresDB(ctx, cfg.DatabaseURL)
	default:
		return store.NewSQLiteDB(cfg.DBPath)
	}
}
