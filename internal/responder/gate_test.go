package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/clock"
)

type reloadCounter struct{ n int }

func (r *reloadCounter) reload(context.Context) error {
	r.n++
	return nil
}

func TestGate_CooldownRefusesRepeatedSignals(t *testing.T) {
	clk := clock.NewFake(epoch)
	reloads := &reloadCounter{}
	g := NewGate(clk, 10*time.Second, reloads.reload, testLogger)

	if !g.Request(2*time.Second, "first failure") {
		t.Fatal("first Request() refused")
	}
	clk.Advance(time.Second)
	if g.Request(2*time.Second, "second failure") {
		t.Error("Request() within cooldown granted")
	}

	clk.Advance(5 * time.Second)
	if reloads.n != 1 {
		t.Errorf("reloads = %d, want 1", reloads.n)
	}

	// Cooldown counts from grant time, not from when the reload fired.
	clk.Advance(4 * time.Second)
	if !g.Request(time.Second, "third failure") {
		t.Error("Request() after cooldown refused")
	}
	clk.Advance(time.Second)
	if reloads.n != 2 {
		t.Errorf("reloads = %d, want 2", reloads.n)
	}
}

func TestGate_MarkRefusesAfterScheduledReload(t *testing.T) {
	clk := clock.NewFake(epoch)
	reloads := &reloadCounter{}
	g := NewGate(clk, 10*time.Second, reloads.reload, testLogger)

	g.Mark()
	clk.Advance(3 * time.Second)
	if g.Request(time.Second, "failure after scheduled reload") {
		t.Error("Request() granted within cooldown of a scheduled reload")
	}

	clk.Advance(7 * time.Second)
	if !g.Request(time.Second, "later failure") {
		t.Error("Request() refused after cooldown")
	}
}

func TestGate_CloseCancelsPendingReload(t *testing.T) {
	clk := clock.NewFake(epoch)
	reloads := &reloadCounter{}
	g := NewGate(clk, 10*time.Second, reloads.reload, testLogger)

	g.Request(2*time.Second, "failure")
	g.Close()
	clk.Advance(time.Minute)

	if reloads.n != 0 {
		t.Errorf("reloads = %d, want 0 after Close", reloads.n)
	}
}

func TestGate_ReloadErrorIsContained(t *testing.T) {
	clk := clock.NewFake(epoch)
	g := NewGate(clk, 10*time.Second, func(context.Context) error { return errors.New("tab gone") }, testLogger)

	g.Request(0, "failure")
	clk.Advance(time.Millisecond)

	clk.Advance(10 * time.Second)
	if !g.Request(0, "retry") {
		t.Error("Request() refused after failed reload and elapsed cooldown")
	}
}

func TestAgent_FailureAndConnectionShareGate(t *testing.T) {
	clk := clock.NewFake(epoch)
	reloads := &reloadCounter{}
	gate := NewGate(clk, 10*time.Second, reloads.reload, testLogger)
	r := newResponder(&fakePage{geo: trackGeometry}, &fakeInjector{}, &counter{}, clk)
	a := NewAgent(r, gate, 2*time.Second, time.Second, testLogger)
	ctx := context.Background()

	a.HandleFailure(ctx, "验证失败")
	a.HandleConnectionError(ctx, "连接中断")
	clk.Advance(5 * time.Second)

	if reloads.n != 1 {
		t.Errorf("reloads = %d, want 1", reloads.n)
	}
}

func TestAgent_HandleChallengeCountsOnce(t *testing.T) {
	clk := clock.NewFake(epoch)
	reports := &counter{}
	r := newResponder(&fakePage{geo: trackGeometry}, &fakeInjector{}, reports, clk)
	a := NewAgent(r, NewGate(clk, 10*time.Second, (&reloadCounter{}).reload, testLogger), 2*time.Second, time.Second, testLogger)
	ctx := context.Background()

	det := challenge.Detection{Type: challenge.TypeSelector, Matcher: "#nc_1_wrapper"}
	a.HandleChallenge(ctx, det)
	a.HandleChallenge(ctx, det)

	if reports.get() != 1 {
		t.Errorf("reports = %d, want 1", reports.get())
	}
	if !a.Resolving() {
		t.Error("Resolving() = false during cooldown")
	}
}

type staticProber struct{ snap challenge.Snapshot }

func (p staticProber) Snapshot(context.Context) (challenge.Snapshot, error) { return p.snap, nil }

func TestAgent_ForceTest(t *testing.T) {
	detector := challenge.NewDetector(challenge.DefaultSignatures())
	boxed := challenge.Element{
		Selector: `[class*="slider"]`,
		Opacity:  "0",
		Rect:     challenge.Rect{X: 10, Y: 10, Width: 300, Height: 30},
	}

	t.Run("fallback scan used", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		reports := &counter{}
		r := newResponder(&fakePage{geo: trackGeometry}, &fakeInjector{}, reports, clk)
		a := NewAgent(r, NewGate(clk, 10*time.Second, (&reloadCounter{}).reload, testLogger), 0, 0, testLogger)

		// A previous attempt is still cooling down; a forced test ignores it.
		if err := r.Resolve(context.Background(), challenge.Detection{}); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		page := staticProber{snap: challenge.Snapshot{Elements: map[string]challenge.Element{`[class*="slider"]`: boxed}}}
		det, err := a.ForceTest(context.Background(), page, detector)
		if err != nil {
			t.Fatalf("ForceTest() error = %v", err)
		}
		if det.Type != challenge.TypeFallback {
			t.Errorf("ForceTest() type = %s, want fallback", det.Type)
		}
		if reports.get() != 2 {
			t.Errorf("reports = %d, want 2", reports.get())
		}
	})

	t.Run("nothing on page", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		r := newResponder(&fakePage{geo: trackGeometry}, &fakeInjector{}, &counter{}, clk)
		a := NewAgent(r, NewGate(clk, 10*time.Second, (&reloadCounter{}).reload, testLogger), 0, 0, testLogger)

		_, err := a.ForceTest(context.Background(), staticProber{}, detector)
		if !errors.Is(err, challenge.ErrNoChallenge) {
			t.Errorf("ForceTest() error = %v, want ErrNoChallenge", err)
		}
	})
}
