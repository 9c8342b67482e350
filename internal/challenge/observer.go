package challenge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/clock"
)

// heartbeatEvery is the number of challenge polls between heartbeat log lines.
const heartbeatEvery = 30

// Prober takes a snapshot of the live page.
type Prober interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Handler receives what the observer finds. Handlers must not block the error poll
// for longer than one poll period.
type Handler interface {
	// Resolving reports whether a challenge attempt is in progress or cooling down.
	Resolving() bool
	HandleChallenge(ctx context.Context, det Detection)
	HandleFailure(ctx context.Context, reason string)
	HandleConnectionError(ctx context.Context, reason string)
}

// Observer polls one page for challenges and error banners on two independent cadences.
type Observer struct {
	page     Prober
	detector *Detector
	handler  Handler
	clock    clock.Clock
	logger   *slog.Logger

	challengeEvery time.Duration
	errorEvery     time.Duration

	checks   atomic.Int64
	failures atomic.Int64
}

// NewObserver creates an observer. Zero intervals default to 1s for challenges and
// 2s for error banners.
func NewObserver(page Prober, detector *Detector, handler Handler, clk clock.Clock, challengeEvery, errorEvery time.Duration, logger *slog.Logger) *Observer {
	if challengeEvery <= 0 {
		challengeEvery = time.Second
	}
	if errorEvery <= 0 {
		errorEvery = 2 * time.Second
	}
	return &Observer{
		page:           page,
		detector:       detector,
		handler:        handler,
		clock:          clk,
		logger:         logger,
		challengeEvery: challengeEvery,
		errorEvery:     errorEvery,
	}
}

// Run polls until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.loop(ctx, o.challengeEvery, func() { o.PollChallenge(ctx) })
	}()
	go func() {
		defer wg.Done()
		o.loop(ctx, o.errorEvery, func() { o.PollErrors(ctx) })
	}()
	wg.Wait()
}

func (o *Observer) loop(ctx context.Context, every time.Duration, poll func()) {
	ticker := o.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.safely(poll)
		}
	}
}

// safely contains a panicking poll so the loop keeps running.
func (o *Observer) safely(poll func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer poll panicked", "panic", r)
		}
	}()
	poll()
}

// PollChallenge runs one challenge check and reports whether a challenge was handed
// to the handler. Checks are skipped while the handler is resolving.
func (o *Observer) PollChallenge(ctx context.Context) bool {
	if o.handler.Resolving() {
		return false
	}

	n := o.checks.Add(1)
	if n%heartbeatEvery == 0 {
		o.logger.Debug("challenge monitor alive", "checks", n)
	}

	snap, err := o.page.Snapshot(ctx)
	if err != nil {
		o.logger.Debug("snapshot failed", "error", err)
		return false
	}

	det, ok := o.detector.Challenge(snap)
	if !ok {
		return false
	}

	o.logger.Info("challenge detected",
		"type", det.Type,
		"matcher", det.Matcher,
		"element_id", det.Element.ID,
		"element_class", det.Element.Class,
	)
	o.handler.HandleChallenge(ctx, det)
	return true
}

// PollErrors runs one failure and connection-error check.
func (o *Observer) PollErrors(ctx context.Context) {
	snap, err := o.page.Snapshot(ctx)
	if err != nil {
		o.logger.Debug("snapshot failed", "error", err)
		return
	}

	if reason, ok := o.detector.Failure(snap); ok {
		n := o.failures.Add(1)
		o.logger.Warn("verification failure detected", "reason", reason, "failures", n)
		o.handler.HandleFailure(ctx, reason)
	}

	if reason, ok := o.detector.ConnectionError(snap); ok {
		o.logger.Warn("connection error detected", "reason", reason)
		o.handler.HandleConnectionError(ctx, reason)
	}
}

// Checks returns the number of challenge polls run.
func (o *Observer) Checks() int64 { return o.checks.Load() }

// Failures returns the number of verification failures seen.
func (o *Observer) Failures() int64 { return o.failures.Load() }
