// Package httpapi exposes a read-only status API over the job store so
// operators and downstream exporters can inspect per-SKU state and the
// batch audit trail without touching the database directly.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cemaco/titlegen/internal/logging"
	"github.com/cemaco/titlegen/internal/store"
)

// defaultListLimit caps list responses unless the caller asks for less.
const defaultListLimit = 500

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	Store  *store.Store
	logger zerolog.Logger
}

// NewHandler builds a handler backed by st.
func NewHandler(st *store.Store) *Handler {
	return &Handler{Store: st, logger: logging.ComponentLogger("httpapi")}
}

// NewRouter builds the HTTP router with routes bound to the handler.
func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{sku}", h.GetJob).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.GetRun).Methods(http.MethodGet)
	return r
}

// Serve blocks serving the API on addr until the server fails.
func Serve(addr string, h *Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.logger.Info().Str("addr", addr).Msg("status API listening")
	return srv.ListenAndServe()
}

// Health reports liveness plus job counts by status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.CountByStatus(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   counts,
	})
}

// GetJob returns the job row for one SKU.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	job, err := h.Store.GetJob(r.Context(), sku)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs returns jobs, optionally filtered by ?status= and bounded
// by ?limit=.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := store.Status(r.URL.Query().Get("status"))
	switch status {
	case "", store.StatusPending, store.StatusProcessing, store.StatusDone, store.StatusError:
	default:
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}

	jobs, err := h.Store.ListJobs(r.Context(), status, queryLimit(r))
	if err != nil {
		h.internalError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*store.SkuJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetRun returns one batch audit record.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRuns returns batch audit records, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), queryLimit(r))
	if err != nil {
		h.internalError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.BatchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > defaultListLimit {
		return defaultListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
