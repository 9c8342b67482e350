package handlers

import (
	"context"

	"github.com/jmylchreest/refresh-agent/internal/browser"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
)

// TabLister lists the browser's open tabs.
type TabLister interface {
	Tabs(ctx context.Context) ([]browser.TabSummary, error)
}

// TabsHandler lists tabs with their refresh status.
type TabsHandler struct {
	tabs   TabLister
	sched  *scheduler.Scheduler
	target scheduler.Matcher
}

// NewTabsHandler creates a new tabs handler.
func NewTabsHandler(tabs TabLister, sched *scheduler.Scheduler, target scheduler.Matcher) *TabsHandler {
	return &TabsHandler{tabs: tabs, sched: sched, target: target}
}

// Handle lists every open tab.
func (h *TabsHandler) Handle(ctx context.Context) ([]models.TabInfo, error) {
	summaries, err := h.tabs.Tabs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.TabInfo, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, models.TabInfo{
			TabID:    s.TabID,
			URL:      s.URL,
			Title:    s.Title,
			IsTarget: h.target.Matches(s.URL),
			Status:   h.sched.Status(ctx, s.TabID),
		})
	}
	return out, nil
}
