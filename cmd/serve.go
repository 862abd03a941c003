package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/medkb/medkb/api"
	"github.com/medkb/medkb/internal/app"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/log"
)

// runServe starts the HTTP API server and blocks until interrupted.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting medkb server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(a.Service, a.Retriever, a.Sessions, a.Pool, logger)
	return server.Run(ctx, addr)
}
