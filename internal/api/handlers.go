package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/embed"
	"github.com/fleetmech/fleetmech/internal/generate"
	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/pipeline"
	"github.com/fleetmech/fleetmech/internal/store"
)

// Pipeline is the slice of *pipeline.Pipeline the handlers depend on.
type Pipeline interface {
	Ingest(ctx context.Context, path string) ([]string, error)
	QueryTopK(ctx context.Context, query string, topK int) (pipeline.Answer, error)
}

type ragHandler struct {
	pipeline Pipeline
	store    store.Store
	logger   log.Logger
}

type ingestRequest struct {
	Path string `json:"path"`
}

type ingestResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
}

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (h *ragHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", h.logger)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path is required", h.logger)
		return
	}

	ids, err := h.pipeline.Ingest(r.Context(), req.Path)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ingestResponse{ChunkIDs: ids}, h.logger)
}

func (h *ragHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", h.logger)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return
	}

	answer, err := h.pipeline.QueryTopK(r.Context(), req.Query, req.TopK)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer, h.logger)
}

func (h *ragHandler) health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chunks": count,
	}, h.logger)
}

// writePipelineError maps pipeline failures onto HTTP statuses: caller
// mistakes are 4xx, upstream model failures are 502/504, everything
// else is 500.
func (h *ragHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery),
		errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, store.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
	case errors.Is(err, generate.ErrContextTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "context_too_large", err.Error(), h.logger)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", err.Error(), h.logger)
	case errors.Is(err, embed.ErrEmbeddingService),
		errors.Is(err, generate.ErrGenerationService):
		writeError(w, http.StatusBadGateway, "upstream_failure", err.Error(), h.logger)
	default:
		h.logger.Error("unhandled pipeline error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
