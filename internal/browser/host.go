// Package browser drives the Chrome instance whose tabs are refreshed.
//
// The Host launches Chrome (or attaches to a running one), answers tab queries for the
// scheduler, reloads tabs and streams tab lifecycle events. Each target-site tab gets a
// page agent that observes it and resolves challenges through CDP input.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/refresh-agent/internal/config"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
)

// ErrNotConnected is returned when the host has no browser connection.
var ErrNotConnected = errors.New("browser not connected")

// TabSummary describes one open page target.
type TabSummary struct {
	TabID models.TabID
	URL   string
	Title string
}

// Host owns the browser connection and a cache of attached pages.
type Host struct {
	mu      sync.RWMutex
	browser *rod.Browser
	pages   map[models.TabID]*rod.Page
	cfg     *config.Config
	logger  *slog.Logger

	launched bool // true when this process started Chrome and must close it
}

// NewHost creates a host. Call Connect before use.
func NewHost(cfg *config.Config, logger *slog.Logger) *Host {
	return &Host{
		pages:  make(map[models.TabID]*rod.Page),
		cfg:    cfg,
		logger: logger,
	}
}

// Connect attaches to CHROME_CONTROL_URL when set, otherwise launches Chrome.
func (h *Host) Connect(ctx context.Context) error {
	controlURL, launched, err := h.resolveControlURL()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The connection outlives ctx; per-call contexts are applied with Context().
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	h.mu.Lock()
	h.browser = b
	h.launched = launched
	h.mu.Unlock()

	h.logger.Info("browser connected", "launched", launched, "headless", h.cfg.Headless)
	return nil
}

func (h *Host) resolveControlURL() (string, bool, error) {
	if h.cfg.ChromeControlURL != "" {
		u, err := launcher.ResolveURL(h.cfg.ChromeControlURL)
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve chrome control url: %w", err)
		}
		h.logger.Info("attaching to running Chrome", "control_url", h.cfg.ChromeControlURL)
		return u, false, nil
	}

	l := launcher.New()
	if h.cfg.ChromePath != "" {
		h.logger.Info("using custom Chrome path", "path", h.cfg.ChromePath)
		l = l.Bin(h.cfg.ChromePath)
	} else {
		// rod downloads Chromium on first use
		h.logger.Info("ensuring Chromium is available...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return "", false, fmt.Errorf("failed to fetch Chromium: %w", err)
		}
		l = l.Bin(path)
	}

	// Tabs stay open for days; keep background tabs running at full speed.
	l = l.
		Headless(h.cfg.Headless).
		Leakless(true).
		Set("disable-dev-shm-usage").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("window-size", "1366,900")

	u, err := l.Launch()
	if err != nil {
		return "", false, fmt.Errorf("failed to launch browser: %w", err)
	}
	return u, true, nil
}

func (h *Host) conn() (*rod.Browser, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.browser == nil {
		return nil, ErrNotConnected
	}
	return h.browser, nil
}

// targets returns every page target known to the browser.
func (h *Host) targets(ctx context.Context) ([]*proto.TargetTargetInfo, error) {
	b, err := h.conn()
	if err != nil {
		return nil, err
	}
	res, err := proto.TargetGetTargets{}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	var pages []*proto.TargetTargetInfo
	for _, info := range res.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage {
			pages = append(pages, info)
		}
	}
	return pages, nil
}

func (h *Host) target(ctx context.Context, tabID models.TabID) (*proto.TargetTargetInfo, error) {
	infos, err := h.targets(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if models.TabID(info.TargetID) == tabID {
			return info, nil
		}
	}
	return nil, scheduler.ErrTabNotFound
}

// URL returns the tab's current location, or scheduler.ErrTabNotFound.
func (h *Host) URL(ctx context.Context, tabID models.TabID) (string, error) {
	info, err := h.target(ctx, tabID)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Page returns the attached page for a tab, attaching on first use.
func (h *Host) Page(ctx context.Context, tabID models.TabID) (*rod.Page, error) {
	h.mu.RLock()
	p, ok := h.pages[tabID]
	h.mu.RUnlock()
	if ok {
		return p, nil
	}

	if _, err := h.target(ctx, tabID); err != nil {
		return nil, err
	}

	b, err := h.conn()
	if err != nil {
		return nil, err
	}
	p, err = b.PageFromTarget(proto.TargetTargetID(tabID))
	if err != nil {
		return nil, fmt.Errorf("failed to attach to tab %s: %w", tabID, err)
	}

	h.mu.Lock()
	if existing, ok := h.pages[tabID]; ok {
		p = existing
	} else {
		h.pages[tabID] = p
	}
	h.mu.Unlock()
	return p, nil
}

// Reload reloads the tab's current document in place.
func (h *Host) Reload(ctx context.Context, tabID models.TabID) error {
	p, err := h.Page(ctx, tabID)
	if err != nil {
		return err
	}
	if err := p.Context(ctx).Reload(); err != nil {
		return fmt.Errorf("failed to reload tab %s: %w", tabID, err)
	}
	return nil
}

// Open creates a new tab at url.
func (h *Host) Open(ctx context.Context, url string) (models.TabID, error) {
	b, err := h.conn()
	if err != nil {
		return "", err
	}
	p, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", url, err)
	}

	tabID := models.TabID(p.TargetID)
	h.mu.Lock()
	h.pages[tabID] = p
	h.mu.Unlock()

	h.logger.Info("tab opened", "tab_id", tabID, "url", url)
	return tabID, nil
}

// Tabs lists the open page targets sorted by id.
func (h *Host) Tabs(ctx context.Context) ([]TabSummary, error) {
	infos, err := h.targets(ctx)
	if err != nil {
		return nil, err
	}

	tabs := make([]TabSummary, 0, len(infos))
	for _, info := range infos {
		tabs = append(tabs, TabSummary{
			TabID: models.TabID(info.TargetID),
			URL:   info.URL,
			Title: info.Title,
		})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].TabID < tabs[j].TabID })
	return tabs, nil
}

// forget drops the cached page of a closed tab.
func (h *Host) forget(tabID models.TabID) {
	h.mu.Lock()
	delete(h.pages, tabID)
	h.mu.Unlock()
}

// Close disconnects, closing Chrome only when this process launched it.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser == nil {
		return
	}

	var err error
	if h.launched {
		err = h.browser.Close()
	}
	if err != nil {
		h.logger.Warn("error closing browser", "error", err)
	}
	h.browser = nil
	h.pages = make(map[models.TabID]*rod.Page)
	h.logger.Info("browser disconnected")
}
