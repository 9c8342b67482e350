package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
)

// loadTimeout bounds the wait for a navigated tab to finish loading.
const loadTimeout = 30 * time.Second

// TabEvents receives tab lifecycle signals.
type TabEvents interface {
	TabNavigated(ctx context.Context, tabID models.TabID, url string) bool
	TabClosed(ctx context.Context, tabID models.TabID)
}

// Watcher turns CDP target events into tab lifecycle signals and keeps a page agent
// attached to every tab showing the target site.
type Watcher struct {
	host   *Host
	agents *Agents
	events TabEvents
	target scheduler.Matcher
	logger *slog.Logger

	mu   sync.Mutex
	urls map[models.TabID]string
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher.
func NewWatcher(host *Host, agents *Agents, events TabEvents, target scheduler.Matcher, logger *slog.Logger) *Watcher {
	return &Watcher{
		host:   host,
		agents: agents,
		events: events,
		target: target,
		logger: logger,
		urls:   make(map[models.TabID]string),
	}
}

// Watch syncs the tabs already open, then follows target events until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	b, err := w.host.conn()
	if err != nil {
		return err
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return err
	}

	wait := b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			w.changed(ctx, e.TargetInfo)
		},
		func(e *proto.TargetTargetInfoChanged) {
			w.changed(ctx, e.TargetInfo)
		},
		func(e *proto.TargetTargetDestroyed) {
			w.closed(ctx, models.TabID(e.TargetID))
		},
	)

	tabs, err := w.host.Tabs(ctx)
	if err != nil {
		return err
	}
	for _, tab := range tabs {
		if w.observe(tab.TabID, tab.URL) {
			w.navigated(ctx, tab.TabID, tab.URL)
		}
	}

	wait()
	w.wg.Wait()
	return ctx.Err()
}

// observe records the tab's URL and reports whether it changed.
func (w *Watcher) observe(tabID models.TabID, url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.urls[tabID] == url {
		return false
	}
	w.urls[tabID] = url
	return true
}

func (w *Watcher) changed(ctx context.Context, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	tabID := models.TabID(info.TargetID)
	if !w.observe(tabID, info.URL) {
		return
	}

	// Wait for the load off the event loop; CDP calls made inside a callback deadlock.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loaded(ctx, tabID)
	}()
}

func (w *Watcher) loaded(ctx context.Context, tabID models.TabID) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tab event handler panicked", "tab_id", tabID, "panic", r)
		}
	}()

	p, err := w.host.Page(ctx, tabID)
	if err != nil {
		w.logger.Debug("tab vanished before load", "tab_id", tabID, "error", err)
		return
	}
	if err := p.Context(ctx).Timeout(loadTimeout).WaitLoad(); err != nil {
		w.logger.Debug("tab did not finish loading", "tab_id", tabID, "error", err)
	}

	url, err := w.host.URL(ctx, tabID)
	if err != nil {
		return
	}
	w.observe(tabID, url)
	w.navigated(ctx, tabID, url)
}

func (w *Watcher) navigated(ctx context.Context, tabID models.TabID, url string) {
	if !w.target.Matches(url) {
		w.agents.Stop(tabID)
		return
	}
	if err := w.agents.Ensure(ctx, tabID); err != nil {
		w.logger.Warn("failed to attach page agent", "tab_id", tabID, "error", err)
	}
	w.events.TabNavigated(ctx, tabID, url)
}

func (w *Watcher) closed(ctx context.Context, tabID models.TabID) {
	w.mu.Lock()
	_, known := w.urls[tabID]
	delete(w.urls, tabID)
	w.mu.Unlock()
	if !known {
		return
	}

	w.host.forget(tabID)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.events.TabClosed(ctx, tabID)
	}()
}
