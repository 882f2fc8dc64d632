package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendtracker/internal/auth"
	"spendtracker/internal/backend"
	"spendtracker/internal/cli"
	"spendtracker/internal/config"
	apphttp "spendtracker/internal/http"
	applog "spendtracker/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             result.Ledger,
		Categories:         result.Categories,
		Auth:               auth.NewService(result.Store, tokens, cfg.BcryptCost),
		Tokens:             tokens,
		Ready:              result.Store.Ping,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting spendtracker server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"backend", backendCfg.Type,
			"balance_policy", cfg.BalancePolicy,
			"events", result.Events)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
