package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetmech/fleetmech/internal/log"
)

// runIngest chunks, embeds, and stores each file named on the command
// line.
func runIngest(logger log.Logger) error {
	paths := os.Args[2:]
	if len(paths) == 0 {
		return fmt.Errorf("usage: fleetmech ingest <file>...")
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

	total := 0
	for _, path := range paths {
		ids, err := a.pipeline.Ingest(ctx, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks stored\n", path, len(ids))
		total += len(ids)
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting stored chunks: %w", err)
	}
	fmt.Printf("done: %d chunks added, %d total in store\n", total, count)
	return nil
}
