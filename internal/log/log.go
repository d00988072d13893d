// Package log provides the logging infrastructure for fleetmech.
//
// Loggers are plain *slog.Logger values passed in via constructors, never
// read from package globals. Components add their own context with
// logger.With("component", ...).
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is an alias for *slog.Logger so components can declare the
// dependency without importing log/slog everywhere.
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level is the minimum level to emit. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output from text to JSON format.
	JSON bool

	// AddSource includes the source position in each record.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use this with a
// bytes.Buffer to inspect output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Nop returns a logger that discards everything. Test-only: production
// code should always receive a real logger.
func Nop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
