package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/orchestrator"
	"seller-data-scheduler/internal/store"
	"seller-data-scheduler/internal/telemetry"
)

// Server wires HTTP handlers for the run-trigger API.
type Server struct {
	cfg   config.Config
	store *store.Store
	orch  *orchestrator.Orchestrator
}

// New constructs the API server.
func New(cfg config.Config, st *store.Store, orch *orchestrator.Orchestrator) *Server {
	return &Server{cfg: cfg, store: st, orch: orch}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/runs", s.handleRun)
	r.Get("/runs/tracking/{id}", s.handleGetTracking)
	return r
}

type runRequest struct {
	UserID    string `json:"user_id"`
	Region    string `json:"region"`
	Country   string `json:"country"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
}

// handleRun triggers one scheduled fetch synchronously. A run can take
// up to ~20 minutes with slow polling jobs; operational callers use
// the worker daemon, this endpoint exists for backfills and debugging.
// Concurrent runs for the same user are not guarded here.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	result := s.orch.RunScheduledFetch(r.Context(), orchestrator.Params{
		UserID:      req.UserID,
		Region:      req.Region,
		Country:     req.Country,
		DayOverride: req.DayOfWeek,
	})
	writeJSON(w, result.StatusCode, result)
}

func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.store.GetTracking(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "tracking entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
