/*
handlers.go - HTTP API handlers for the Rule 37 calculation service

PURPOSE:
  Exposes the calculation engine and saved-run storage via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Ledgers:
    POST   /api/v1/ledgers/upload       Upload ledgers, calculate, save run

  Runs:
    GET    /api/v1/runs                 List saved runs (paginated)
    GET    /api/v1/runs/{id}            Get one run with full results
    DELETE /api/v1/runs/{id}            Delete a run
    GET    /api/v1/runs/{id}/export     Download run as xlsx or pdf

  Health:
    GET    /api/v1/health               Liveness probe

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Run persistence
  - Credits: Credit service client
  - Engine: The calculation engine (stateless)
  - Upload limits (file count, file size, per-tenant run cap, retention)

TENANCY:
  Tenant and user come from X-Tenant-Id / X-User-Id headers, defaulting
  to "default" / "system". The gateway in front of this service owns
  real authentication; these handlers only scope data by the headers.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unparsable files
  - 402: Insufficient credits
  - 404: Run not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - upload.go: Upload orchestration
  - export.go: XLSX/PDF rendering
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gstledger/itc-engine/credit"
	"github.com/gstledger/itc-engine/rule37"
	"github.com/gstledger/itc-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Limits bounds what a single upload may cost the service.
type Limits struct {
	MaxFiles         int
	MaxFileSizeBytes int64
	MaxRunsPerTenant int
	RetentionDays    int
}

// DefaultLimits mirrors the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:         10,
		MaxFileSizeBytes: 5 << 20,
		MaxRunsPerTenant: 50,
		RetentionDays:    7,
	}
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Credits *credit.Client
	Engine  *rule37.Engine
	Limits  Limits
}

// NewHandler creates a handler with the given store and credit client.
func NewHandler(store *sqlite.Store, credits *credit.Client, limits Limits) *Handler {
	return &Handler{
		Store:   store,
		Credits: credits,
		Engine:  &rule37.Engine{},
		Limits:  limits,
	}
}

// tenantID resolves the calling tenant from headers.
func tenantID(r *http.Request) string {
	if t := r.Header.Get("X-Tenant-Id"); t != "" {
		return t
	}
	return "default"
}

// userID resolves the calling user from headers.
func userID(r *http.Request) string {
	if u := r.Header.Get("X-User-Id"); u != "" {
		return u
	}
	return "system"
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns the tenant's saved runs, newest first.
// GET /api/v1/runs?limit=20&offset=0
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	runs, err := h.Store.ListRuns(r.Context(), tenant, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	total, err := h.Store.CountRuns(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run, false)
	}

	writeJSON(w, http.StatusOK, RunListDTO{
		Runs:   dtos,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun returns one saved run with its full results.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id, tenantID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toRunDTO(*run, true))
}

// DeleteRun removes a saved run.
// DELETE /api/v1/runs/{id}
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.Store.DeleteRun(r.Context(), id, tenantID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete run", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health is the liveness probe.
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func toRunDTO(run sqlite.Run, includeResults bool) RunDTO {
	dto := RunDTO{
		ID:               run.ID,
		Filename:         run.Filename,
		AsOnDate:         run.AsOnDate.String(),
		TotalInterest:    run.TotalInterest.StringFixed(2),
		TotalItcReversal: run.TotalItcReversal.StringFixed(2),
		CreatedBy:        run.CreatedBy,
		CreatedAt:        run.CreatedAt.Format(time.RFC3339),
		ExpiresAt:        run.ExpiresAt.Format(time.RFC3339),
	}
	if includeResults {
		var results RunResults
		if err := json.Unmarshal([]byte(run.ResultsJSON), &results); err == nil {
			dto.Results = &results
		}
	}
	return dto
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
