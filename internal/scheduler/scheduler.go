// Package scheduler owns the per-tab reload timers.
//
// Each scheduled tab has exactly one armed timer. When it fires the tab is re-validated,
// reloaded if it still shows the target site, and only then re-armed with a fresh random
// interval, so two reload cycles for the same tab never overlap. A fire, Start and Stop
// of one tab serialize on that tab's cycle lock: Stop returns only once an in-flight
// cycle has finished, and nothing of the old chain runs after it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/session"
)

// ErrTabNotFound is returned by a Tabs implementation when the tab no longer exists.
var ErrTabNotFound = errors.New("tab not found")

// Tabs is the host capability the scheduler needs to validate and reload a tab.
type Tabs interface {
	URL(ctx context.Context, tabID models.TabID) (string, error)
	Reload(ctx context.Context, tabID models.TabID) error
}

// Matcher reports whether a URL belongs to the target site.
type Matcher interface {
	Matches(rawURL string) bool
}

// NextInterval draws a uniformly random whole number of seconds in [minInterval, maxInterval].
// intn must return a value in [0, n).
func NextInterval(minInterval, maxInterval int, intn func(n int) int) time.Duration {
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return time.Duration(intn(maxInterval-minInterval+1)+minInterval) * time.Second
}

// armed is the live timer of one tab. gen identifies the start call that created the chain.
type armed struct {
	gen   uint64
	timer clock.Timer
	min   int
	max   int
}

// cycleLock serializes the reload cycle and the start/stop calls of one tab. refs is
// guarded by Scheduler.mu and drops the entry once no caller holds or awaits it.
type cycleLock struct {
	mu   sync.Mutex
	refs int
}

// Scheduler arms, fires and cancels reload timers.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[models.TabID]*armed
	cycles  map[models.TabID]*cycleLock
	nextGen uint64

	sessions *session.Store
	tabs     Tabs
	target   Matcher
	clock    clock.Clock
	logger   *slog.Logger
	intn     func(n int) int

	fireTimeout time.Duration
	onReload    func(models.TabID)
	onGone      func(models.TabID)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand overrides the random source used for interval draws.
func WithRand(intn func(n int) int) Option {
	return func(s *Scheduler) { s.intn = intn }
}

// WithReloadHook registers a callback invoked after every scheduled reload is issued.
func WithReloadHook(f func(models.TabID)) Option {
	return func(s *Scheduler) { s.onReload = f }
}

// WithTabGoneHook registers a callback invoked when a firing timer finds its tab closed.
func WithTabGoneHook(f func(models.TabID)) Option {
	return func(s *Scheduler) { s.onGone = f }
}

// WithFireTimeout bounds the host calls made by one timer fire.
func WithFireTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.fireTimeout = d }
}

// New creates a scheduler.
func New(sessions *session.Store, tabs Tabs, target Matcher, clk clock.Clock, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		timers:      make(map[models.TabID]*armed),
		cycles:      make(map[models.TabID]*cycleLock),
		sessions:    sessions,
		tabs:        tabs,
		target:      target,
		clock:       clk,
		logger:      logger,
		intn:        rand.IntN,
		fireTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockCycle takes the tab's cycle lock and returns its release.
func (s *Scheduler) lockCycle(tabID models.TabID) func() {
	s.mu.Lock()
	l, ok := s.cycles[tabID]
	if !ok {
		l = &cycleLock{}
		s.cycles[tabID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.cycles, tabID)
		}
		s.mu.Unlock()
	}
}

// Start (re)schedules periodic reloads of a tab. Any existing timer is cancelled first.
// It waits for an in-flight reload cycle of the tab to finish.
func (s *Scheduler) Start(ctx context.Context, tabID models.TabID, minInterval, maxInterval int) {
	unlock := s.lockCycle(tabID)
	defer unlock()

	s.mu.Lock()
	if old, ok := s.timers[tabID]; ok {
		old.timer.Stop()
	}
	s.nextGen++
	a := &armed{gen: s.nextGen, min: minInterval, max: maxInterval}
	s.timers[tabID] = a
	next := s.armLocked(tabID, a)
	s.mu.Unlock()

	s.sessions.SaveConfig(ctx, tabID, models.RefreshConfig{
		Active:      true,
		MinInterval: minInterval,
		MaxInterval: maxInterval,
	})

	s.logger.Info("refresh started",
		"tab_id", tabID,
		"min_interval", minInterval,
		"max_interval", maxInterval,
		"next_fire_at", next,
	)
}

// armLocked draws the next interval and arms the timer. Caller holds s.mu.
func (s *Scheduler) armLocked(tabID models.TabID, a *armed) time.Time {
	d := NextInterval(a.min, a.max, s.intn)
	gen := a.gen
	a.timer = s.clock.AfterFunc(d, func() { s.fire(tabID, gen) })

	next := s.clock.Now().Add(d)
	s.sessions.MarkScheduled(tabID, a.min, a.max, next)
	return next
}

// Stop cancels a tab's timer and persists the inactive configuration. Stopping a tab
// that has neither a live timer nor an active durable record is a no-op. Stop waits
// for an in-flight reload cycle of the tab, which then does not re-arm.
func (s *Scheduler) Stop(ctx context.Context, tabID models.TabID) {
	unlock := s.lockCycle(tabID)
	defer unlock()
	s.teardown(ctx, tabID)
}

// teardown is Stop without the cycle lock. Caller holds the tab's cycle lock.
func (s *Scheduler) teardown(ctx context.Context, tabID models.TabID) {
	s.mu.Lock()
	a, live := s.timers[tabID]
	if live {
		a.timer.Stop()
		delete(s.timers, tabID)
	}
	s.mu.Unlock()

	if !live {
		cfg := s.sessions.Config(ctx, tabID)
		if cfg == nil || !cfg.Active {
			return
		}
	}

	s.sessions.MarkStopped(tabID)
	s.sessions.SaveConfig(ctx, tabID, models.RefreshConfig{Active: false})
	s.logger.Info("refresh stopped", "tab_id", tabID)
}

// Close cancels every timer. Durable records keep their active flag so the next
// process start recovers them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tabID, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, tabID)
	}
}

// Scheduled reports whether a timer is live for the tab.
func (s *Scheduler) Scheduled(tabID models.TabID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[tabID]
	return ok
}

// ActiveCount returns the number of tabs with a live timer.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Status returns the live status of a tab, reconciled with its durable configuration.
func (s *Scheduler) Status(ctx context.Context, tabID models.TabID) models.RefreshStatus {
	live := s.Scheduled(tabID)
	sess, _ := s.sessions.Session(tabID)
	cfg := s.sessions.Config(ctx, tabID)

	status := models.RefreshStatus{
		IsActive:  live || (cfg != nil && cfg.Active),
		Stats:     s.sessions.Stats(ctx, tabID),
		Config:    cfg,
		TimerLive: live,
	}

	if live && !sess.NextFireAt.IsZero() {
		status.NextRefreshTime = models.UnixMilli(sess.NextFireAt)
		remaining := int(sess.NextFireAt.Sub(s.clock.Now()) / time.Second)
		status.RemainingSeconds = max(remaining, 0)
	}
	return status
}

// current reports whether gen is still the live chain for the tab.
func (s *Scheduler) current(tabID models.TabID, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.timers[tabID]
	return ok && a.gen == gen
}

// fire runs one reload cycle for the chain identified by gen. The tab-gone hook runs
// after the cycle lock is released since it may stop the tab itself.
func (s *Scheduler) fire(tabID models.TabID, gen uint64) {
	if s.cycle(tabID, gen) && s.onGone != nil {
		s.onGone(tabID)
	}
}

// cycle validates, reloads and re-arms the tab under its cycle lock. It reports whether
// the tab was found closed.
func (s *Scheduler) cycle(tabID models.TabID, gen uint64) bool {
	unlock := s.lockCycle(tabID)
	defer unlock()

	if !s.current(tabID, gen) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()

	logger := s.logger.With("tab_id", tabID)

	url, err := s.tabs.URL(ctx, tabID)
	switch {
	case errors.Is(err, ErrTabNotFound):
		logger.Info("tab gone, tearing down session")
		s.teardown(ctx, tabID)
		return true
	case err != nil:
		logger.Warn("failed to query tab, will retry next cycle", "error", err)
		s.rearm(tabID, gen)
		return false
	}

	if !s.target.Matches(url) {
		logger.Debug("tab off target site, skipping reload", "url", url)
		s.rearm(tabID, gen)
		return false
	}

	stats := s.sessions.RecordRefresh(ctx, tabID)
	if err := s.tabs.Reload(ctx, tabID); err != nil {
		logger.Warn("reload failed", "error", err)
	} else {
		logger.Info("tab reloaded", "refresh_count", stats.RefreshCount)
	}
	if s.onReload != nil {
		s.onReload(tabID)
	}

	s.rearm(tabID, gen)
	return false
}

// rearm arms the next timer unless the chain was stopped or restarted meanwhile.
func (s *Scheduler) rearm(tabID models.TabID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.timers[tabID]
	if !ok || a.gen != gen {
		return
	}
	next := s.armLocked(tabID, a)
	s.logger.Debug("next refresh armed", "tab_id", tabID, "next_fire_at", next)
}
