// Package ops exposes the engine's operational HTTP surface: health and
// status probes plus an internal endpoint to trigger an evaluation cycle on
// demand. It is meant to listen on a private port, not to be a public API.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fieldwatch/internal/scheduler"
	"fieldwatch/internal/types"
)

// Pinger reports whether the backing store is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineControl is the slice of the scheduler engine the ops surface needs.
type EngineControl interface {
	RunOnce(ctx context.Context) (types.CycleStats, error)
	LastCycle() *types.CycleStats
	LastCleanup() *scheduler.CleanupStats
}

// AlertStore is the slice of the alert repository the ops surface needs: the
// read path for active alerts and the acknowledge path for the API layer.
type AlertStore interface {
	ListActiveBySite(ctx context.Context, siteID string) ([]*types.Alert, error)
	Acknowledge(ctx context.Context, alertID, ownerID string) (bool, error)
}

// Server serves the ops endpoints.
type Server struct {
	engine    EngineControl
	db        Pinger
	alerts    AlertStore
	logger    *slog.Logger
	clock     types.Clock
	startedAt time.Time
	version   string
}

// ServerConfig holds the configuration for creating a Server.
type ServerConfig struct {
	Engine  EngineControl
	DB      Pinger
	Alerts  AlertStore
	Logger  *slog.Logger
	Clock   types.Clock
	Version string
}

// NewServer creates an ops Server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Server{
		engine:    cfg.Engine,
		db:        cfg.DB,
		alerts:    cfg.Alerts,
		logger:    logger,
		clock:     clock,
		startedAt: clock.Now(),
		version:   cfg.Version,
	}
}

// Router builds the chi router for the ops surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Post("/internal/run", s.handleRunCycle)
	r.Get("/sites/{siteID}/alerts", s.handleListSiteAlerts)
	r.Post("/alerts/{alertID}/ack", s.handleAcknowledge)

	return r
}

// handleHealthz reports liveness plus store reachability. A down store
// answers 503 so orchestration can restart or route around the process.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed, store unreachable", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  "unreachable",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  "ok",
	})
}

type statusResponse struct {
	Version     string         `json:"version,omitempty"`
	UptimeSec   int64          `json:"uptime_seconds"`
	LastCycle   *cycleStatus   `json:"last_cycle,omitempty"`
	LastCleanup *cleanupStatus `json:"last_cleanup,omitempty"`
}

type cycleStatus struct {
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	Sites         int       `json:"sites"`
	Failed        int       `json:"failed"`
	AlertsCreated int       `json:"alerts_created"`
	Aborted       bool      `json:"aborted"`
}

type cleanupStatus struct {
	AlertsDeactivated int64 `json:"alerts_deactivated"`
	SnapshotsArchived int64 `json:"snapshots_archived"`
	SnapshotsDeleted  int64 `json:"snapshots_deleted"`
}

// handleStatus reports the most recent cycle and sweep outcomes.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.version,
		UptimeSec: int64(s.clock.Now().Sub(s.startedAt).Seconds()),
	}

	if stats := s.engine.LastCycle(); stats != nil {
		resp.LastCycle = &cycleStatus{
			StartedAt:     stats.StartedAt,
			DurationMS:    stats.Duration.Milliseconds(),
			Sites:         stats.Sites,
			Failed:        stats.Failed,
			AlertsCreated: stats.AlertsCreated,
			Aborted:       stats.Aborted,
		}
	}
	if stats := s.engine.LastCleanup(); stats != nil {
		resp.LastCleanup = &cleanupStatus{
			AlertsDeactivated: stats.AlertsDeactivated,
			SnapshotsArchived: stats.SnapshotsArchived,
			SnapshotsDeleted:  stats.SnapshotsDeleted,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleRunCycle triggers an evaluation cycle synchronously and returns its
// stats. A cycle already in flight answers 409 rather than queueing.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInFlight) {
			s.writeJSON(w, http.StatusConflict, map[string]string{
				"error": "evaluation cycle already in flight",
			})
			return
		}
		s.logger.ErrorContext(r.Context(), "manual cycle failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "cycle failed",
			"stats": cycleStatus{
				StartedAt:     stats.StartedAt,
				DurationMS:    stats.Duration.Milliseconds(),
				Sites:         stats.Sites,
				Failed:        stats.Failed,
				AlertsCreated: stats.AlertsCreated,
				Aborted:       stats.Aborted,
			},
		})
		return
	}

	s.writeJSON(w, http.StatusOK, cycleStatus{
		StartedAt:     stats.StartedAt,
		DurationMS:    stats.Duration.Milliseconds(),
		Sites:         stats.Sites,
		Failed:        stats.Failed,
		AlertsCreated: stats.AlertsCreated,
		Aborted:       stats.Aborted,
	})
}

// handleListSiteAlerts returns a site's active alerts, most urgent first.
func (s *Server) handleListSiteAlerts(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	alerts, err := s.alerts.ListActiveBySite(r.Context(), siteID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to list site alerts",
			"site_id", siteID,
			"error", err,
		)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []*types.Alert{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"site_id": siteID,
		"alerts":  alerts,
	})
}

type acknowledgeRequest struct {
	OwnerID string `json:"owner_id"`
}

// handleAcknowledge marks an alert acknowledged on behalf of its owner. It
// answers 404 when the alert does not exist, is already inactive, or belongs
// to a different owner; the three cases are indistinguishable on purpose.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "owner_id is required",
		})
		return
	}

	acked, err := s.alerts.Acknowledge(r.Context(), alertID, req.OwnerID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to acknowledge alert",
			"alert_id", alertID,
			"error", err,
		)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to acknowledge alert",
		})
		return
	}
	if !acked {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no active alert found",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"alert_id": alertID,
		"status":   "acknowledged",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode ops response", "error", err)
	}
}
