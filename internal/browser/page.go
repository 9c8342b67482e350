package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/responder"
)

// evalTimeout bounds a single probe so a hung renderer cannot stall a poll loop.
const evalTimeout = 5 * time.Second

// Page adapts a rod page to the observer and responder.
type Page struct {
	page *rod.Page
	sigs challenge.Signatures

	selectors []string
	phrases   []string
}

// NewPage wraps a rod page.
func NewPage(p *rod.Page, sigs challenge.Signatures) *Page {
	return &Page{
		page:      p,
		sigs:      sigs,
		selectors: sigs.ProbeSelectors(),
		phrases:   sigs.ProbePhrases(),
	}
}

func (p *Page) eval(ctx context.Context, js string, args ...any) (string, error) {
	res, err := p.page.Context(ctx).Timeout(evalTimeout).Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Snapshot implements challenge.Prober.
func (p *Page) Snapshot(ctx context.Context) (challenge.Snapshot, error) {
	raw, err := p.eval(ctx, snapshotJS, p.selectors, p.phrases, p.sigs.FailureElements)
	if err != nil {
		return challenge.Snapshot{}, fmt.Errorf("snapshot probe failed: %w", err)
	}
	return decodeSnapshot(raw)
}

func decodeSnapshot(raw string) (challenge.Snapshot, error) {
	var snap challenge.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return challenge.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Elements == nil {
		snap.Elements = map[string]challenge.Element{}
	}
	if snap.Phrases == nil {
		snap.Phrases = map[string]bool{}
	}
	return snap, nil
}

// Locate implements responder.Page.
func (p *Page) Locate(ctx context.Context, det challenge.Detection) (responder.Geometry, error) {
	raw, err := p.eval(ctx, locateJS,
		det.Element.Selector,
		p.sigs.HandleClasses,
		p.sigs.HandleIDParts,
		p.sigs.HandleSelectors,
		p.sigs.TrackSelectors,
	)
	if err != nil {
		return responder.Geometry{}, err
	}
	return decodeGeometry(raw)
}

func decodeGeometry(raw string) (responder.Geometry, error) {
	if raw == "" {
		return responder.Geometry{}, fmt.Errorf("element no longer on page")
	}
	var geo responder.Geometry
	if err := json.Unmarshal([]byte(raw), &geo); err != nil {
		return responder.Geometry{}, fmt.Errorf("failed to decode geometry: %w", err)
	}
	if geo.Handle.Width <= 0 || geo.Handle.Height <= 0 {
		return responder.Geometry{}, fmt.Errorf("handle has no area")
	}
	return geo, nil
}

func (p *Page) mouse(ctx context.Context, typ proto.InputDispatchMouseEventType, x, y float64, clicks int) error {
	return proto.InputDispatchMouseEvent{
		Type:       typ,
		X:          x,
		Y:          y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: clicks,
	}.Call(p.page.Context(ctx))
}

// PointerDown implements responder.Injector.
func (p *Page) PointerDown(ctx context.Context, x, y float64) error {
	if err := p.mouse(ctx, proto.InputDispatchMouseEventTypeMouseMoved, x, y, 0); err != nil {
		return fmt.Errorf("failed to move mouse: %w", err)
	}
	if err := p.mouse(ctx, proto.InputDispatchMouseEventTypeMousePressed, x, y, 1); err != nil {
		return fmt.Errorf("failed to press mouse: %w", err)
	}
	return nil
}

// PointerMove implements responder.Injector.
func (p *Page) PointerMove(ctx context.Context, x, y float64) error {
	if err := p.mouse(ctx, proto.InputDispatchMouseEventTypeMouseMoved, x, y, 0); err != nil {
		return fmt.Errorf("failed to move mouse: %w", err)
	}
	return nil
}

// PointerUp implements responder.Injector.
func (p *Page) PointerUp(ctx context.Context, x, y float64) error {
	if err := p.mouse(ctx, proto.InputDispatchMouseEventTypeMouseReleased, x, y, 1); err != nil {
		return fmt.Errorf("failed to release mouse: %w", err)
	}
	return nil
}

// Click implements responder.Injector with a DOM click at the release point.
func (p *Page) Click(ctx context.Context, x, y float64) error {
	if _, err := p.page.Context(ctx).Timeout(evalTimeout).Eval(clickJS, x, y); err != nil {
		return fmt.Errorf("failed to dispatch click: %w", err)
	}
	return nil
}
