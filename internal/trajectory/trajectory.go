// Package trajectory synthesizes human-like pointer drags.
//
// A drag has four phases: acceleration, cruise, deceleration and a final correction
// that overshoots the target and retreats part of the way. Every call draws fresh
// randomness; only the statistical shape of a drag is stable.
package trajectory

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	accelSteps = 15
	accelMin   = 2.0 // px, first acceleration step
	accelGain  = 8.0 // px added over the acceleration ramp

	cruiseMin       = 8.0
	cruiseMax       = 12.0
	cruiseJitter    = 1.5
	cruiseUntil     = 0.7 // fraction of the landing distance
	hesitationP     = 0.1
	hesitationMinMS = 30
	hesitationMaxMS = 80

	decelSteps  = 20
	decelJitter = 0.8
	minStep     = 0.5

	overshootMin = 5
	overshootMax = 15

	// accelShare caps the acceleration ramp for short drags.
	accelShare = 0.4
)

// Step is one incremental pointer move.
type Step struct {
	DX    float64
	DY    float64
	Pause time.Duration // extra hesitation after this move, zero for none
}

// Source is the randomness a synthesis draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// Synthesize returns the pointer deltas for a drag of distance pixels. The x deltas sum
// to distance; every step but the final retreat moves forward. A nil rng uses the
// global random source.
func Synthesize(distance float64, rng Source) []Step {
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil
	}
	if rng == nil {
		rng = globalSource{}
	}

	overshoot := math.Min(float64(randInt(rng, overshootMin, overshootMax)), distance)
	// The correction nets +overshoot/2, so the first three phases land short of the target by that much.
	landing := distance - overshoot/2

	steps := make([]Step, 0, accelSteps+decelSteps+32)
	covered := 0.0

	ramp := accelMin*accelSteps + accelGain*float64(accelSteps+1)/2
	scale := math.Min(1, accelShare*landing/ramp)
	for i := 1; i <= accelSteps; i++ {
		progress := float64(i) / accelSteps
		dx := (accelMin + progress*accelGain) * scale
		steps = append(steps, Step{DX: dx, DY: randFloat(rng, -1, 1)})
		covered += dx
	}

	for covered < landing*cruiseUntil {
		dx := math.Min(randFloat(rng, cruiseMin, cruiseMax), landing-covered)
		step := Step{DX: dx, DY: randFloat(rng, -cruiseJitter, cruiseJitter)}
		if rng.Float64() < hesitationP {
			step.Pause = time.Duration(randInt(rng, hesitationMinMS, hesitationMaxMS)) * time.Millisecond
		}
		steps = append(steps, step)
		covered += dx
	}

	// Deceleration shares the remainder with linearly shrinking weights.
	remaining := landing - covered
	weightSum := 0.0
	for i := 1; i <= decelSteps; i++ {
		weightSum += decelWeight(i)
	}
	for i := 1; i <= decelSteps; i++ {
		left := landing - covered
		if left <= 0 {
			break
		}
		dx := math.Max(remaining*decelWeight(i)/weightSum, minStep)
		if dx > left || i == decelSteps {
			dx = left
		}
		steps = append(steps, Step{DX: dx, DY: randFloat(rng, -decelJitter, decelJitter)})
		covered += dx
	}

	steps = append(steps,
		Step{DX: overshoot, DY: randFloat(rng, -0.5, 0.5)},
		Step{DX: -overshoot / 2},
	)
	return steps
}

// decelWeight shrinks from just under 1 to 0.5 across the deceleration steps.
func decelWeight(i int) float64 {
	return 1 - float64(i)/decelSteps*0.5
}

// Distance returns the net x travel of a trajectory.
func Distance(steps []Step) float64 {
	sum := 0.0
	for _, s := range steps {
		sum += s.DX
	}
	return sum
}

// Duration returns the total hesitation time embedded in a trajectory.
func Duration(steps []Step) time.Duration {
	var d time.Duration
	for _, s := range steps {
		d += s.Pause
	}
	return d
}

func randFloat(rng Source, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// randInt returns an integer in [lo, hi].
func randInt(rng Source, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}
