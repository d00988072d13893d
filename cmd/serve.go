package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetmech/fleetmech/internal/api"
	"github.com/fleetmech/fleetmech/internal/log"
)

const shutdownTimeout = 30 * time.Second

// runServe starts the HTTP API server and blocks until SIGINT/SIGTERM.
func runServe(logger log.Logger) error {
	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("store close error", "error", closeErr)
		}
	}()

	srv, err := api.NewServer(api.ServerConfig{
		Addr:     addr,
		Pipeline: a.pipeline,
		Store:    a.store,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}
