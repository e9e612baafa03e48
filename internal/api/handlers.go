package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/ccrp/internal/metrics"
	"github.com/yegors/ccrp/internal/mission"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/pkg/logger"
)

const maxRequestBody = 1 << 20

// Solver is the mission service as seen by the API
type Solver interface {
	Solve(ctx context.Context, req mission.Request) (*mission.Record, error)
	List(limit, offset int) ([]*mission.Record, error)
	Get(id string) (*mission.Record, error)
}

// Handler contains the API handlers
type Handler struct {
	solver     Solver
	maxHistory int
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(solver Solver, maxHistory int, log *logger.Logger) *Handler {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Handler{
		solver:     solver,
		maxHistory: maxHistory,
		logger:     log.Named("api-handler"),
	}
}

// Solve runs exactly one solve for the posted scenario
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	var req mission.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	start := time.Now()
	record, err := h.solver.Solve(r.Context(), req)
	if err != nil {
		status, kind := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Solve failed", logger.Error(err))
		}
		WriteError(w, status, kind, err.Error())
		return
	}

	h.logger.Debug("Solve request served",
		logger.String("id", record.ID),
		logger.Duration("duration", time.Since(start)))

	WriteJSON(w, http.StatusOK, record)
}

// ListSolutions returns stored solutions, newest first
func (h *Handler) ListSolutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r, h.maxHistory)

	records, err := h.solver.List(limit, offset)
	if err != nil {
		if errors.Is(err, mission.ErrHistoryDisabled) {
			WriteError(w, http.StatusServiceUnavailable, "history_disabled", err.Error())
			return
		}
		h.logger.Error("Failed to retrieve solutions", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, metrics.OutcomeError, "Failed to retrieve solutions")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now(),
		"count":     len(records),
		"limit":     limit,
		"offset":    offset,
		"solutions": records,
	})
}

// GetSolution returns one stored solution
func (h *Handler) GetSolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Missing solution ID")
		return
	}

	record, err := h.solver.Get(id)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, record)
	case errors.Is(err, sqlite.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Solution not found: "+id)
	case errors.Is(err, mission.ErrHistoryDisabled):
		WriteError(w, http.StatusServiceUnavailable, "history_disabled", err.Error())
	default:
		h.logger.Error("Failed to retrieve solution", logger.String("id", id), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, metrics.OutcomeError, "Failed to retrieve solution")
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// errorStatus maps a solve error to an HTTP status and an error kind
func errorStatus(err error) (int, string) {
	kind := mission.Outcome(err)
	switch kind {
	case metrics.OutcomeInvalidInput, metrics.OutcomeConversionError:
		return http.StatusBadRequest, kind
	case metrics.OutcomeIntegrationBound:
		return http.StatusUnprocessableEntity, kind
	case metrics.OutcomeWeatherUnavailable:
		return http.StatusBadGateway, kind
	case metrics.OutcomeCanceled:
		return http.StatusServiceUnavailable, kind
	}
	return http.StatusInternalServerError, kind
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
		"kind":  kind,
	})
}

func parsePaginationParams(r *http.Request, maxLimit int) (int, int) {
	limit := maxLimit
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}
