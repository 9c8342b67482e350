package trajectory

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

const tolerance = 1e-6

func TestSynthesize_SumConvergesToDistance(t *testing.T) {
	distances := []float64{50, 120, 280, 333.3, 600, 1000}

	for _, d := range distances {
		for seed := uint64(1); seed <= 50; seed++ {
			rng := rand.New(rand.NewPCG(seed, seed*7919))
			steps := Synthesize(d, rng)
			if got := Distance(steps); math.Abs(got-d) > tolerance {
				t.Errorf("distance %.1f seed %d: sum of dx = %.6f", d, seed, got)
			}
		}
	}
}

func TestSynthesize_StepsForwardAndBounded(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, 42))
		d := 50 + float64(seed%20)*47.5
		steps := Synthesize(d, rng)

		if len(steps) < accelSteps+2 {
			t.Fatalf("seed %d: %d steps, want at least %d", seed, len(steps), accelSteps+2)
		}

		for i, s := range steps[:len(steps)-1] {
			if s.DX < 0 {
				t.Errorf("seed %d step %d: dx = %.3f, want non-negative", seed, i, s.DX)
			}
			if s.DX > 25 {
				t.Errorf("seed %d step %d: dx = %.3f, exceeds 25px", seed, i, s.DX)
			}
			if math.Abs(s.DY) > cruiseJitter {
				t.Errorf("seed %d step %d: dy = %.3f, exceeds jitter band", seed, i, s.DY)
			}
		}

		last := steps[len(steps)-1]
		overshoot := steps[len(steps)-2]
		if last.DX >= 0 {
			t.Errorf("seed %d: final step dx = %.3f, want a retreat", seed, last.DX)
		}
		if overshoot.DX < overshootMin || overshoot.DX > overshootMax {
			t.Errorf("seed %d: overshoot = %.3f, want within [%d, %d]", seed, overshoot.DX, overshootMin, overshootMax)
		}
		if math.Abs(last.DX) >= overshoot.DX {
			t.Errorf("seed %d: retreat %.3f not partial for overshoot %.3f", seed, last.DX, overshoot.DX)
		}
	}
}

func TestSynthesize_PassesTarget(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	const d = 280.0

	steps := Synthesize(d, rng)
	peak := Distance(steps[:len(steps)-1])
	if peak <= d {
		t.Errorf("peak position = %.2f, want beyond target %.0f before the retreat", peak, d)
	}
}

func TestSynthesize_AccelerationRamps(t *testing.T) {
	steps := Synthesize(280, rand.New(rand.NewPCG(9, 9)))

	for i := 1; i < accelSteps; i++ {
		if steps[i].DX <= steps[i-1].DX {
			t.Errorf("acceleration step %d dx %.3f not greater than %.3f", i, steps[i].DX, steps[i-1].DX)
		}
	}
	if math.Abs(steps[accelSteps-1].DX-(accelMin+accelGain)) > tolerance {
		t.Errorf("last acceleration step = %.3f, want %.1f", steps[accelSteps-1].DX, accelMin+accelGain)
	}
}

func TestSynthesize_Hesitations(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	paused := 0

	for run := 0; run < 100; run++ {
		for _, s := range Synthesize(600, rng) {
			if s.Pause == 0 {
				continue
			}
			paused++
			if s.Pause < hesitationMinMS*time.Millisecond || s.Pause > hesitationMaxMS*time.Millisecond {
				t.Errorf("pause = %v, want within [30ms, 80ms]", s.Pause)
			}
		}
	}
	if paused == 0 {
		t.Error("no hesitation pauses in 100 drags, want some")
	}
}

func TestSynthesize_NotDeterministic(t *testing.T) {
	a := Synthesize(280, nil)
	b := Synthesize(280, nil)

	same := len(a) == len(b)
	for i := 0; same && i < len(a); i++ {
		same = a[i] == b[i]
	}
	if same {
		t.Error("two drags with the global source were identical")
	}
}

func TestSynthesize_InvalidDistance(t *testing.T) {
	for _, d := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		if steps := Synthesize(d, nil); steps != nil {
			t.Errorf("Synthesize(%v) = %d steps, want nil", d, len(steps))
		}
	}
}

func TestSynthesize_ShortDrag(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	steps := Synthesize(4, rng)

	if got := Distance(steps); math.Abs(got-4) > tolerance {
		t.Errorf("sum of dx = %.6f, want 4", got)
	}
}
