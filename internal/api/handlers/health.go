package handlers

import (
	"context"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
	"github.com/jmylchreest/refresh-agent/internal/session"
	"github.com/jmylchreest/refresh-agent/internal/version"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	sched    *scheduler.Scheduler
	sessions *session.Store
	started  time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(sched *scheduler.Scheduler, sessions *session.Store) *HealthHandler {
	return &HealthHandler{sched: sched, sessions: sessions, started: time.Now()}
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body models.HealthResponse
}

// Handle returns the health status.
func (h *HealthHandler) Handle(ctx context.Context) *models.HealthResponse {
	build := version.Get()
	return &models.HealthResponse{
		Status:         "healthy",
		Version:        build.Version,
		Commit:         build.Commit,
		TrackedTabs:    len(h.sessions.Tabs()),
		ActiveSessions: h.sched.ActiveCount(),
		Uptime:         int64(time.Since(h.started).Seconds()),
	}
}
