// Package api exposes the RAG pipeline over a small JSON HTTP API:
// document ingestion, question answering, and a health probe.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/store"
)

// ServerConfig contains what the API server needs to run.
type ServerConfig struct {
	Addr     string
	Pipeline Pipeline    // Required
	Store    store.Store // Required: backs the health probe
	Logger   log.Logger
}

// Server is the JSON API HTTP server.
type Server struct {
	httpServer *http.Server
	logger     log.Logger
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	h := &ragHandler{pipeline: cfg.Pipeline, store: cfg.Store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/ingest", h.ingest)
	mux.HandleFunc("POST /api/ask", h.ask)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// Ingestion embeds whole documents in one request; generation
			// can also run long. Keep these generous.
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
	}, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("api server shutting down")
	return s.httpServer.Shutdown(ctx)
}
