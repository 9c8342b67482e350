// Package session keeps the per-tab Session and Stats records owned by the controller.
//
// In-memory state always wins while the process is alive; every change is mirrored to
// the durable store so the recovery path can rebuild sessions after a restart.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/models"
)

// Durable is the persistence layer the store mirrors into.
type Durable interface {
	LoadRefresh(ctx context.Context, tabID models.TabID) (*models.RefreshConfig, error)
	SaveRefresh(ctx context.Context, tabID models.TabID, cfg models.RefreshConfig) error
	ListRefresh(ctx context.Context) (map[models.TabID]models.RefreshConfig, error)
	LoadStats(ctx context.Context, tabID models.TabID) (*models.Stats, error)
	SaveStats(ctx context.Context, tabID models.TabID, stats models.Stats) error
	DeleteTab(ctx context.Context, tabID models.TabID) error
	LoadGlobal(ctx context.Context) (models.GlobalConfig, bool, error)
	SaveGlobal(ctx context.Context, cfg models.GlobalConfig) error
}

// Store holds Session and Stats per tab.
type Store struct {
	mu       sync.Mutex
	sessions map[models.TabID]*models.Session
	stats    map[models.TabID]*models.Stats
	durable  Durable
	clock    clock.Clock
	logger   *slog.Logger
	defaults models.GlobalConfig
}

// NewStore creates a session store mirrored into durable. defaults is returned by
// Global when no globalConfig record exists.
func NewStore(durable Durable, clk clock.Clock, defaults models.GlobalConfig, logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[models.TabID]*models.Session),
		stats:    make(map[models.TabID]*models.Stats),
		durable:  durable,
		clock:    clk,
		logger:   logger,
		defaults: defaults,
	}
}

// Session returns a copy of the tab's session record.
func (s *Store) Session(tabID models.TabID) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok {
		return models.Session{TabID: tabID, State: models.StateStopped}, false
	}
	return *sess, true
}

// MarkScheduled records that a timer is armed for the tab and when it will fire.
func (s *Store) MarkScheduled(tabID models.TabID, minInterval, maxInterval int, nextFireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(tabID)
	sess.State = models.StateScheduled
	sess.MinInterval = minInterval
	sess.MaxInterval = maxInterval
	sess.NextFireAt = nextFireAt
}

// MarkStopped records that no timer is pending for the tab.
func (s *Store) MarkStopped(tabID models.TabID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[tabID]; ok {
		sess.State = models.StateStopped
		sess.NextFireAt = time.Time{}
	}
}

func (s *Store) sessionLocked(tabID models.TabID) *models.Session {
	sess, ok := s.sessions[tabID]
	if !ok {
		sess = &models.Session{TabID: tabID, State: models.StateStopped}
		s.sessions[tabID] = sess
	}
	return sess
}

// Stats returns the tab's counters without creating a record for the tab. A tab with
// neither in-memory nor durable stats reports zeroed counters started now.
func (s *Store) Stats(ctx context.Context, tabID models.TabID) models.Stats {
	s.mu.Lock()
	if st, ok := s.stats[tabID]; ok {
		snapshot := *st
		s.mu.Unlock()
		return snapshot
	}
	s.mu.Unlock()

	stored, err := s.durable.LoadStats(ctx, tabID)
	if err != nil {
		s.logger.Warn("failed to load stats", "tab_id", tabID, "error", err)
	}
	if stored == nil {
		return models.NewStats(s.clock.Now())
	}
	return *stored
}

// statsLocked lazily loads stats from the durable store, or starts fresh ones.
func (s *Store) statsLocked(ctx context.Context, tabID models.TabID) *models.Stats {
	if st, ok := s.stats[tabID]; ok {
		return st
	}

	stored, err := s.durable.LoadStats(ctx, tabID)
	if err != nil {
		s.logger.Warn("failed to load stats, starting fresh", "tab_id", tabID, "error", err)
	}

	st := stored
	if st == nil {
		fresh := models.NewStats(s.clock.Now())
		st = &fresh
	}
	s.stats[tabID] = st
	return st
}

// RecordRefresh counts one executed reload and persists the stats.
func (s *Store) RecordRefresh(ctx context.Context, tabID models.TabID) models.Stats {
	s.mu.Lock()
	st := s.statsLocked(ctx, tabID)
	st.RefreshCount++
	now := s.clock.Now()
	st.LastRefresh = &now
	snapshot := *st
	s.mu.Unlock()

	s.persistStats(ctx, tabID, snapshot)
	return snapshot
}

// RecordVerify counts one completed challenge resolution and persists the stats.
func (s *Store) RecordVerify(ctx context.Context, tabID models.TabID) models.Stats {
	s.mu.Lock()
	st := s.statsLocked(ctx, tabID)
	st.VerifyCount++
	snapshot := *st
	s.mu.Unlock()

	s.persistStats(ctx, tabID, snapshot)
	s.logger.Info("verification counted", "tab_id", tabID, "verify_count", snapshot.VerifyCount)
	return snapshot
}

// ResetStats zeroes the counters and stamps a new start time.
func (s *Store) ResetStats(ctx context.Context, tabID models.TabID) models.Stats {
	s.mu.Lock()
	fresh := models.NewStats(s.clock.Now())
	s.stats[tabID] = &fresh
	s.mu.Unlock()

	s.persistStats(ctx, tabID, fresh)
	return fresh
}

func (s *Store) persistStats(ctx context.Context, tabID models.TabID, st models.Stats) {
	if err := s.durable.SaveStats(ctx, tabID, st); err != nil {
		s.logger.Error("failed to persist stats", "tab_id", tabID, "error", err)
	}
}

// Config returns the durable refresh configuration of a tab, or nil.
func (s *Store) Config(ctx context.Context, tabID models.TabID) *models.RefreshConfig {
	cfg, err := s.durable.LoadRefresh(ctx, tabID)
	if err != nil {
		s.logger.Warn("failed to load refresh config", "tab_id", tabID, "error", err)
		return nil
	}
	return cfg
}

// SaveConfig persists a tab's refresh configuration.
func (s *Store) SaveConfig(ctx context.Context, tabID models.TabID, cfg models.RefreshConfig) {
	if err := s.durable.SaveRefresh(ctx, tabID, cfg); err != nil {
		s.logger.Error("failed to persist refresh config", "tab_id", tabID, "active", cfg.Active, "error", err)
	}
}

// Configs returns all durable refresh configurations.
func (s *Store) Configs(ctx context.Context) (map[models.TabID]models.RefreshConfig, error) {
	return s.durable.ListRefresh(ctx)
}

// Forget drops all in-memory and durable state for a tab.
func (s *Store) Forget(ctx context.Context, tabID models.TabID) {
	s.mu.Lock()
	delete(s.sessions, tabID)
	delete(s.stats, tabID)
	s.mu.Unlock()

	if err := s.durable.DeleteTab(ctx, tabID); err != nil {
		s.logger.Error("failed to delete tab records", "tab_id", tabID, "error", err)
	}
}

// Tabs returns the ids of all tabs with in-memory state, sorted.
func (s *Store) Tabs() []models.TabID {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.TabID]struct{}, len(s.sessions)+len(s.stats))
	for id := range s.sessions {
		seen[id] = struct{}{}
	}
	for id := range s.stats {
		seen[id] = struct{}{}
	}

	ids := make([]models.TabID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Global returns the process-wide configuration, falling back to the defaults.
func (s *Store) Global(ctx context.Context) models.GlobalConfig {
	cfg, ok, err := s.durable.LoadGlobal(ctx)
	if err != nil {
		s.logger.Warn("failed to load global config, using defaults", "error", err)
		return s.defaults
	}
	if !ok {
		return s.defaults
	}
	return cfg
}

// SaveGlobal persists the process-wide configuration.
func (s *Store) SaveGlobal(ctx context.Context, cfg models.GlobalConfig) error {
	return s.durable.SaveGlobal(ctx, cfg)
}

// EnsureGlobal writes the defaults when no global configuration has been stored yet.
func (s *Store) EnsureGlobal(ctx context.Context) error {
	_, ok, err := s.durable.LoadGlobal(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	s.logger.Info("writing default global config",
		"min_interval", s.defaults.MinInterval,
		"max_interval", s.defaults.MaxInterval,
		"auto_enable", s.defaults.AutoEnable,
	)
	return s.durable.SaveGlobal(ctx, s.defaults)
}
