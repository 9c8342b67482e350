// Package lifecycle reacts to tab lifecycle signals and restores sessions after a restart.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
	"github.com/jmylchreest/refresh-agent/internal/session"
)

// Coordinator drives the scheduler from host tab events.
type Coordinator struct {
	sched    *scheduler.Scheduler
	sessions *session.Store
	target   scheduler.Matcher
	logger   *slog.Logger

	// onClosed is called after a closed tab's state has been dropped.
	onClosed func(models.TabID)
}

// New creates a lifecycle coordinator.
func New(sched *scheduler.Scheduler, sessions *session.Store, target scheduler.Matcher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		sched:    sched,
		sessions: sessions,
		target:   target,
		logger:   logger,
	}
}

// OnClosed registers a callback run after a tab has been torn down.
func (c *Coordinator) OnClosed(f func(models.TabID)) {
	c.onClosed = f
}

// TabClosed stops the tab's session and deletes all of its state.
func (c *Coordinator) TabClosed(ctx context.Context, tabID models.TabID) {
	c.sched.Stop(ctx, tabID)
	c.sessions.Forget(ctx, tabID)
	c.logger.Info("tab closed, session removed", "tab_id", tabID)

	if c.onClosed != nil {
		c.onClosed(tabID)
	}
}

// TabNavigated auto-starts a session when a tab finishes loading the target site.
// It reports whether a session was started.
func (c *Coordinator) TabNavigated(ctx context.Context, tabID models.TabID, url string) bool {
	if !c.target.Matches(url) {
		return false
	}
	if c.sched.Scheduled(tabID) {
		return false
	}

	global := c.sessions.Global(ctx)
	if !global.AutoEnable {
		c.logger.Debug("target tab loaded, auto-enable off", "tab_id", tabID)
		return false
	}

	c.logger.Info("target tab loaded, auto-starting refresh", "tab_id", tabID, "url", url)
	c.sched.Start(ctx, tabID, global.MinInterval, global.MaxInterval)
	return true
}

// Recover re-arms every session whose durable record is marked active and returns
// how many were restored. Records without bounds fall back to the global config.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	configs, err := c.sessions.Configs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list refresh records: %w", err)
	}

	global := c.sessions.Global(ctx)

	ids := make([]models.TabID, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	restored := 0
	for _, id := range ids {
		cfg := configs[id]
		if !cfg.Active {
			continue
		}
		cfg = cfg.WithDefaults(global)
		c.sched.Start(ctx, id, cfg.MinInterval, cfg.MaxInterval)
		restored++
	}

	if restored > 0 {
		c.logger.Info("recovered active sessions", "count", restored)
	}
	return restored, nil
}
