// Package responder resolves detected slide challenges and rate-limits corrective reloads.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/trajectory"
)

var (
	// ErrResolving is returned when an attempt is already running or cooling down.
	ErrResolving = errors.New("challenge resolution already in progress")
	// ErrNotLocated is returned when the handle or its track cannot be measured.
	ErrNotLocated = errors.New("challenge handle not located")
)

const (
	// trackMargin is kept between the handle's final position and the track's end.
	trackMargin = 5.0
	// Measured distances outside [minDistance, maxDistance] are replaced by defaultDistance.
	minDistance     = 50.0
	maxDistance     = 1000.0
	defaultDistance = 280.0

	pressMinMS = 50
	pressMaxMS = 100
	moveMinMS  = 1
	moveMaxMS  = 3
)

// Geometry is the measured layout of a challenge.
type Geometry struct {
	Handle challenge.Rect `json:"handle"`
	Track  challenge.Rect `json:"track"`
}

// Page measures a detected challenge on the live page.
type Page interface {
	Locate(ctx context.Context, det challenge.Detection) (Geometry, error)
}

// Injector dispatches synthetic pointer input at viewport coordinates.
type Injector interface {
	PointerDown(ctx context.Context, x, y float64) error
	PointerMove(ctx context.Context, x, y float64) error
	PointerUp(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64) error
}

// Distance returns how far the handle must travel along its track. Implausible
// measurements yield the default distance.
func Distance(handle, track challenge.Rect) float64 {
	d := track.Width - handle.Width - trackMargin
	if d < minDistance || d > maxDistance {
		return defaultDistance
	}
	return d
}

// Responder drives one page through Idle, Resolving and cooldown back to Idle.
type Responder struct {
	page     Page
	input    Injector
	report   func(ctx context.Context)
	clock    clock.Clock
	logger   *slog.Logger
	rng      *rand.Rand
	cooldown time.Duration

	resolving atomic.Bool
	completed atomic.Int64

	mu      sync.Mutex
	release clock.Timer
}

// New creates a responder. report is called once per completed drag.
func New(page Page, input Injector, report func(ctx context.Context), clk clock.Clock, cooldown time.Duration, logger *slog.Logger) *Responder {
	return &Responder{
		page:     page,
		input:    input,
		report:   report,
		clock:    clk,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		cooldown: cooldown,
	}
}

// Resolving reports whether an attempt is running or its cooldown has not elapsed.
func (r *Responder) Resolving() bool {
	return r.resolving.Load()
}

// Resolve locates the handle, drags it along its track and reports completion.
// On any error or panic the guard is released at once and nothing is reported.
func (r *Responder) Resolve(ctx context.Context, det challenge.Detection) error {
	if !r.resolving.CompareAndSwap(false, true) {
		return ErrResolving
	}
	completed := false
	defer func() {
		if !completed {
			r.resolving.Store(false)
		}
	}()

	geo, err := r.page.Locate(ctx, det)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLocated, err)
	}

	distance := Distance(geo.Handle, geo.Track)
	steps := trajectory.Synthesize(distance, r.rng)

	r.logger.Info("resolving challenge",
		"matcher", det.Matcher,
		"track_width", geo.Track.Width,
		"handle_width", geo.Handle.Width,
		"distance", distance,
		"steps", len(steps),
		"hesitation", trajectory.Duration(steps),
	)

	if err := r.drag(ctx, geo.Handle, steps); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	completed = true

	n := r.completed.Add(1)
	r.logger.Info("challenge drag completed", "completed", n)
	if r.report != nil {
		r.report(ctx)
	}

	r.mu.Lock()
	r.release = r.clock.AfterFunc(r.cooldown, func() { r.resolving.Store(false) })
	r.mu.Unlock()
	return nil
}

// Reset drops the guard and any pending cooldown.
func (r *Responder) Reset() {
	r.mu.Lock()
	if r.release != nil {
		r.release.Stop()
		r.release = nil
	}
	r.mu.Unlock()
	r.resolving.Store(false)
}

func (r *Responder) drag(ctx context.Context, handle challenge.Rect, steps []trajectory.Step) error {
	x, y := handle.Center()

	if err := r.input.PointerDown(ctx, x, y); err != nil {
		return err
	}
	if err := r.clock.Sleep(ctx, r.randMS(pressMinMS, pressMaxMS)); err != nil {
		return err
	}

	for _, step := range steps {
		x += step.DX
		y += step.DY
		if err := r.input.PointerMove(ctx, x, y); err != nil {
			return err
		}

		pause := step.Pause
		if pause == 0 {
			pause = r.randMS(moveMinMS, moveMaxMS)
		}
		if err := r.clock.Sleep(ctx, pause); err != nil {
			return err
		}
	}

	if err := r.input.PointerUp(ctx, x, y); err != nil {
		return err
	}
	return r.input.Click(ctx, x, y)
}

func (r *Responder) randMS(lo, hi int) time.Duration {
	return time.Duration(lo+r.rng.IntN(hi-lo+1)) * time.Millisecond
}
