// Package cmd provides the fleetmech CLI commands.
//
// Commands:
//   - ingest: chunk, embed, and store a maintenance document
//   - ask: answer a question against the ingested documents
//   - serve: HTTP API server
//
// serve handles SIGINT/SIGTERM with graceful shutdown via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fleetmech/fleetmech/internal/log"
)

// Execute is the main entry point for the fleetmech CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ingest":
		return runIngest(logger)
	case "ask":
		return runAsk(logger)
	case "serve":
		return runServe(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("fleetmech - maintenance Q&A for trucking fleets")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  fleetmech ingest <file>...   Ingest maintenance documents (pdf, csv, txt, md)")
	fmt.Println("  fleetmech ask <question>     Answer a question from ingested documents")
	fmt.Println("  fleetmech serve [addr]       Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  fleetmech --version          Show version information")
	fmt.Println("  fleetmech --help             Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Postgres URL (when store_driver is postgres)")
	fmt.Println("  FLEETMECH_*        Override any config key, e.g. FLEETMECH_TOP_K=8")
	fmt.Println("  DEBUG              Optional: enable debug logging")
}
