// Package handlers provides HTTP handlers for the refresh agent control API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/config"
	"github.com/jmylchreest/refresh-agent/internal/http/mw"
	"github.com/jmylchreest/refresh-agent/internal/logging"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
	"github.com/jmylchreest/refresh-agent/internal/session"
)

// Slider forces a challenge attempt on a tab.
type Slider interface {
	TestSlider(ctx context.Context, tabID models.TabID) (challenge.Detection, error)
}

// CommandHandler dispatches control panel commands.
type CommandHandler struct {
	sched    *scheduler.Scheduler
	sessions *session.Store
	slider   Slider
	cfg      *config.Config
	logger   *slog.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(
	sched *scheduler.Scheduler,
	sessions *session.Store,
	slider Slider,
	cfg *config.Config,
	logger *slog.Logger,
) *CommandHandler {
	return &CommandHandler{
		sched:    sched,
		sessions: sessions,
		slider:   slider,
		cfg:      cfg,
		logger:   logger,
	}
}

// ValidateBounds checks interval bounds against the configured policy.
func ValidateBounds(cfg *config.Config, minInterval, maxInterval int) error {
	switch {
	case minInterval < cfg.MinAllowedInterval:
		return fmt.Errorf("minInterval must be at least %d seconds", cfg.MinAllowedInterval)
	case maxInterval > cfg.MaxAllowedInterval:
		return fmt.Errorf("maxInterval must be at most %d seconds", cfg.MaxAllowedInterval)
	case minInterval > maxInterval:
		return errors.New("minInterval must not exceed maxInterval")
	}
	return nil
}

// Handle processes one command.
func (h *CommandHandler) Handle(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	if req.TabID != "" {
		ctx = logging.WithTabID(ctx, string(req.TabID))
	}
	logging.FromContext(ctx, h.logger).Debug("command received",
		"subject", mw.Subject(ctx),
		"action", req.Action,
	)

	if req.TabID == "" {
		switch req.Action {
		case models.ActionStartRefresh, models.ActionStopRefresh, models.ActionGetRefreshStatus,
			models.ActionVerifyCompleted, models.ActionResetStats, models.ActionTestSlider:
			return models.NewErrorResponse("tabId required")
		}
	}

	switch req.Action {
	case models.ActionStartRefresh:
		return h.handleStart(ctx, req)
	case models.ActionStopRefresh:
		return h.handleStop(ctx, req)
	case models.ActionGetRefreshStatus:
		return h.handleStatus(ctx, req)
	case models.ActionVerifyCompleted:
		return h.handleVerifyCompleted(ctx, req)
	case models.ActionResetStats:
		return h.handleResetStats(ctx, req)
	case models.ActionTestSlider:
		return h.handleTestSlider(ctx, req)
	default:
		return models.NewErrorResponse("unknown action: " + req.Action)
	}
}

func (h *CommandHandler) withStatus(ctx context.Context, tabID models.TabID) *models.CommandResponse {
	resp := models.NewSuccessResponse()
	status := h.sched.Status(ctx, tabID)
	resp.RefreshStatus = &status
	return resp
}

func (h *CommandHandler) handleStart(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	if err := ValidateBounds(h.cfg, req.MinInterval, req.MaxInterval); err != nil {
		logging.FromContext(ctx, h.logger).Info("start rejected", "error", err)
		return models.NewErrorResponse(err.Error())
	}

	h.sched.Start(ctx, req.TabID, req.MinInterval, req.MaxInterval)
	logging.FromContext(ctx, h.logger).Info("start requested",
		"subject", mw.Subject(ctx),
		"min_interval", req.MinInterval,
		"max_interval", req.MaxInterval,
	)
	return h.withStatus(ctx, req.TabID)
}

func (h *CommandHandler) handleStop(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	h.sched.Stop(ctx, req.TabID)
	logging.FromContext(ctx, h.logger).Info("stop requested", "subject", mw.Subject(ctx))
	return h.withStatus(ctx, req.TabID)
}

func (h *CommandHandler) handleStatus(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	return h.withStatus(ctx, req.TabID)
}

func (h *CommandHandler) handleVerifyCompleted(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	st := h.sessions.RecordVerify(ctx, req.TabID)
	logging.FromContext(ctx, h.logger).Info("verification reported", "verify_count", st.VerifyCount)
	return h.withStatus(ctx, req.TabID)
}

func (h *CommandHandler) handleResetStats(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	h.sessions.ResetStats(ctx, req.TabID)
	logging.FromContext(ctx, h.logger).Info("stats reset", "subject", mw.Subject(ctx))
	return h.withStatus(ctx, req.TabID)
}

func (h *CommandHandler) handleTestSlider(ctx context.Context, req *models.CommandRequest) *models.CommandResponse {
	if h.slider == nil {
		return models.NewErrorResponse("no browser attached")
	}

	det, err := h.slider.TestSlider(ctx, req.TabID)
	switch {
	case errors.Is(err, challenge.ErrNoChallenge):
		return models.NewErrorResponse("no challenge found on page")
	case err != nil:
		logging.FromContext(ctx, h.logger).Warn("forced challenge attempt failed", "error", err)
		return models.NewErrorResponse("challenge attempt failed: " + err.Error())
	}

	resp := h.withStatus(ctx, req.TabID)
	resp.Message = fmt.Sprintf("%s challenge attempted (%s)", det.Type, det.Matcher)
	return resp
}
