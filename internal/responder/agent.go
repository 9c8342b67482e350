package responder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
)

// Agent handles what a page's observer finds: challenges go to the responder, failure
// and connection banners go through the gate.
type Agent struct {
	responder       *Responder
	gate            *Gate
	failureDelay    time.Duration
	connectionDelay time.Duration
	logger          *slog.Logger
}

// NewAgent binds a responder and a gate.
func NewAgent(r *Responder, g *Gate, failureDelay, connectionDelay time.Duration, logger *slog.Logger) *Agent {
	return &Agent{
		responder:       r,
		gate:            g,
		failureDelay:    failureDelay,
		connectionDelay: connectionDelay,
		logger:          logger,
	}
}

// Resolving implements challenge.Handler.
func (a *Agent) Resolving() bool {
	return a.responder.Resolving()
}

// HandleChallenge implements challenge.Handler. Faults are logged and the next poll retries.
func (a *Agent) HandleChallenge(ctx context.Context, det challenge.Detection) {
	if err := a.responder.Resolve(ctx, det); err != nil && !errors.Is(err, ErrResolving) {
		a.logger.Warn("challenge attempt failed, will retry", "matcher", det.Matcher, "error", err)
	}
}

// HandleFailure implements challenge.Handler.
func (a *Agent) HandleFailure(_ context.Context, reason string) {
	a.gate.Request(a.failureDelay, "verification failure: "+reason)
}

// HandleConnectionError implements challenge.Handler.
func (a *Agent) HandleConnectionError(_ context.Context, reason string) {
	a.gate.Request(a.connectionDelay, "connection error: "+reason)
}

// Gate returns the agent's reload gate.
func (a *Agent) Gate() *Gate { return a.gate }

// ForceTest clears the guard and runs a detection pass immediately. When regular
// detection finds nothing the broad fallback scan is tried.
func (a *Agent) ForceTest(ctx context.Context, page challenge.Prober, detector *challenge.Detector) (challenge.Detection, error) {
	a.responder.Reset()

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return challenge.Detection{Type: challenge.TypeNone}, err
	}

	det, ok := detector.Challenge(snap)
	if !ok {
		a.logger.Info("regular detection found nothing, trying fallback scan")
		det, ok = detector.Fallback(snap)
	}
	if !ok {
		return det, challenge.ErrNoChallenge
	}

	a.logger.Info("forced challenge attempt", "type", det.Type, "matcher", det.Matcher)
	return det, a.responder.Resolve(ctx, det)
}
