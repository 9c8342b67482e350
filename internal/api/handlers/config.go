package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/refresh-agent/internal/config"
	"github.com/jmylchreest/refresh-agent/internal/http/mw"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/session"
)

// ConfigHandler reads and writes the global configuration.
type ConfigHandler struct {
	sessions *session.Store
	cfg      *config.Config
	logger   *slog.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(sessions *session.Store, cfg *config.Config, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{sessions: sessions, cfg: cfg, logger: logger}
}

// Get returns the stored global configuration, or the defaults.
func (h *ConfigHandler) Get(ctx context.Context) models.GlobalConfig {
	return h.sessions.Global(ctx)
}

// Put validates and stores a new global configuration.
func (h *ConfigHandler) Put(ctx context.Context, req *models.GlobalConfigRequest) (models.GlobalConfig, error) {
	if err := ValidateBounds(h.cfg, req.MinInterval, req.MaxInterval); err != nil {
		return models.GlobalConfig{}, err
	}

	global := models.GlobalConfig{
		MinInterval: req.MinInterval,
		MaxInterval: req.MaxInterval,
		AutoEnable:  true,
	}
	if req.AutoEnable != nil {
		global.AutoEnable = *req.AutoEnable
	}

	if err := h.sessions.SaveGlobal(ctx, global); err != nil {
		return models.GlobalConfig{}, err
	}
	h.logger.Info("global config updated",
		"subject", mw.Subject(ctx),
		"min_interval", global.MinInterval,
		"max_interval", global.MaxInterval,
		"auto_enable", global.AutoEnable,
	)
	return global, nil
}
