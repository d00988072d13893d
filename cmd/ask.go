package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fleetmech/fleetmech/internal/log"
)

// runAsk answers a single question and prints the answer with its
// confidence and sources.
func runAsk(logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: fleetmech ask <question>")
	}
	question := strings.Join(os.Args[2:], " ")

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

	answer, err := a.pipeline.Query(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(answer.Answer)
	fmt.Println()
	fmt.Printf("confidence: %.2f\n", answer.Confidence)
	for _, src := range answer.Sources {
		fmt.Printf("source: %s (%.2f)\n", src.SourceDocument, src.Score)
	}
	return nil
}
