// Package cli holds the start-up and shutdown steps shared by
// cmd/spendtracker and cmd/sheets-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spendtracker/internal/config"
	applog "spendtracker/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is not an
// error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs a text logger at the configured level as the slog
// default.
func SetupLogger(level, component string) (*applog.Logger, error) {
	lvl, err := applog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := applog.New(applog.Config{Level: lvl, Component: component, Output: os.Stdout})
	applog.SetDefault(logger)
	return logger, nil
}

// LoadConfig loads .env and the environment, then runs validate (Validate or
// ValidateWorker).
func LoadConfig(validate func(*config.Config) error) (*config.Config, error) {
	LoadEnvFile()
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap loads config and the logger, exiting the process on failure.
func Bootstrap(component string, validate func(*config.Config) error) (*config.Config, *applog.Logger) {
	cfg, err := LoadConfig(validate)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := SetupLogger(cfg.LogLevel, component)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg, logger
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	}()
	return ctx, cancel
}
