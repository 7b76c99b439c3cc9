// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/clipradar/detector"
	"github.com/onnwee/clipradar/settings"
	"github.com/onnwee/clipradar/twitchapi"
)

// Handlers holds dependencies for all HTTP handlers. ctx is the process
// lifetime context: the monitor's timer must outlive any single request.
type Handlers struct {
	ctx      context.Context
	store    settings.Store
	detector *detector.Detector
	monitor  *detector.Monitor
	db       *sql.DB // nil when running without Postgres
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, store settings.Store, det *detector.Detector, mon *detector.Monitor, db *sql.DB) *Handlers {
	return &Handlers{ctx: ctx, store: store, detector: det, monitor: mon, db: db}
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness; with Postgres configured it pings the pool.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns a lightweight status summary for dashboards.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.monitor.Snapshot()
	resp := map[string]any{
		"monitor_state":        snap.State,
		"moments":              len(snap.Moments),
		"using_synthetic_data": snap.UsingSyntheticData,
	}
	if !snap.LastDetectedAt.IsZero() {
		resp["last_detected_at"] = snap.LastDetectedAt
	}
	if snap.LastError != "" {
		resp["last_error"] = snap.LastError
	}
	if id, err := twitchapi.ResolveIdentity(r.Context(), h.store); err == nil {
		resp["credential_mode"] = id.Kind.String()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleMoments runs one detection cycle and returns the ranked result.
// Query params: synthetic=1 skips the network entirely, game_id filters by category.
func (h *Handlers) HandleMoments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	opts := detector.Options{
		ForceSynthetic: r.URL.Query().Get("synthetic") == "1",
		GameID:         r.URL.Query().Get("game_id"),
	}
	res, err := h.detector.Detect(r.Context(), opts)
	if err != nil {
		writeDetectError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// HandleMonitorSnapshot returns the current monitor state and result set.
func (h *Handlers) HandleMonitorSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.monitor.Snapshot())
}

// HandleMonitorStart starts the polling loop (no-op when already active).
func (h *Handlers) HandleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Deliberately not the request context: the timer outlives this request.
	if err := h.monitor.Start(h.ctx); err != nil {
		writeDetectError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.monitor.Snapshot())
}

// HandleMonitorStop stops the polling loop.
func (h *Handlers) HandleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.monitor.Stop()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.monitor.Snapshot())
}

// HandleMonitorRefresh runs one immediate cycle without touching the timer.
func (h *Handlers) HandleMonitorRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := h.monitor.Refresh(r.Context())
	if err != nil {
		writeDetectError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// writeDetectError maps pipeline errors to HTTP statuses: configuration
// problems are the caller's to fix (422), upstream failures are a bad gateway.
func writeDetectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, twitchapi.ErrMissingCredentials):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, twitchapi.ErrUpstreamUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
