// Package handlers serves the read-only query surface consumed by dashboards:
// closed trips, detector events and rollups. Nothing here mutates core state.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/models"
)

const defaultLimit = 100

// QueryHandler exposes trips, events and rollups over HTTP.
type QueryHandler struct {
	trips   db.TripStore
	events  db.EventStore
	rollups db.RollupStore
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(trips db.TripStore, events db.EventStore, rollups db.RollupStore) *QueryHandler {
	return &QueryHandler{trips: trips, events: events, rollups: rollups}
}

// Register mounts the handler's routes on mux.
func (h *QueryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/trips", h.Trips)
	mux.HandleFunc("/api/events/transitions", h.Transitions)
	mux.HandleFunc("/api/events/refuels", h.Refuels)
	mux.HandleFunc("/api/rollups", h.Rollups)
}

// Trips lists closed trips in a time range (default: last 24h).
func (h *QueryHandler) Trips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid from timestamp", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid to timestamp", http.StatusBadRequest)
			return
		}
		to = t
	}
	trips, err := h.trips.ClosedInRange(r.Context(), from, to)
	if err != nil {
		http.Error(w, "Failed to query trips", http.StatusInternalServerError)
		return
	}
	writeJSON(w, trips)
}

// Transitions lists recent mode-transition events.
func (h *QueryHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	events, err := h.events.ListModeTransitions(r.Context(), limitParam(r))
	if err != nil {
		http.Error(w, "Failed to query events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// Refuels lists recent refuel events.
func (h *QueryHandler) Refuels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	events, err := h.events.ListRefuels(r.Context(), limitParam(r))
	if err != nil {
		http.Error(w, "Failed to query events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// Rollups lists rollups for a granularity (default daily).
func (h *QueryHandler) Rollups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	granularity := r.URL.Query().Get("granularity")
	switch granularity {
	case "":
		granularity = models.RollupDaily
	case models.RollupHourly, models.RollupDaily, models.RollupMonthly:
	default:
		http.Error(w, "Invalid granularity", http.StatusBadRequest)
		return
	}
	rollups, err := h.rollups.List(r.Context(), granularity, limitParam(r))
	if err != nil {
		http.Error(w, "Failed to query rollups", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rollups)
}

func limitParam(r *http.Request) int64 {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
