package responder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/clock"
)

// Gate rate-limits reloads of one tab. A request is refused when the last granted
// reload was stamped less than the cooldown ago; otherwise the reload is scheduled
// after the requested delay and the stamp is taken at grant time.
type Gate struct {
	mu       sync.Mutex
	clock    clock.Clock
	cooldown time.Duration
	reload   func(ctx context.Context) error
	logger   *slog.Logger

	last    time.Time
	stamped bool
	pending clock.Timer
}

// NewGate creates a reload gate.
func NewGate(clk clock.Clock, cooldown time.Duration, reload func(ctx context.Context) error, logger *slog.Logger) *Gate {
	return &Gate{
		clock:    clk,
		cooldown: cooldown,
		reload:   reload,
		logger:   logger,
	}
}

// Request asks for a reload after delay and reports whether it was granted.
func (g *Gate) Request(delay time.Duration, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if g.stamped && now.Sub(g.last) < g.cooldown {
		g.logger.Debug("reload refused, cooldown active",
			"reason", reason,
			"since_last", now.Sub(g.last),
		)
		return false
	}

	g.last = now
	g.stamped = true
	g.pending = g.clock.AfterFunc(delay, func() { g.fire(reason) })
	g.logger.Info("reload granted", "reason", reason, "delay", delay)
	return true
}

// Mark stamps a reload issued outside the gate, such as a scheduled one.
func (g *Gate) Mark() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = g.clock.Now()
	g.stamped = true
}

// Close cancels a granted reload that has not fired yet.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}

func (g *Gate) fire(reason string) {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := g.reload(ctx); err != nil {
		g.logger.Warn("corrective reload failed", "reason", reason, "error", err)
		return
	}
	g.logger.Info("corrective reload issued", "reason", reason)
}
