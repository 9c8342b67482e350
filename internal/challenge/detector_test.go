package challenge

import (
	"testing"
)

func visible(selector string) Element {
	return Element{
		Selector:     selector,
		Tag:          "DIV",
		Display:      "block",
		Visibility:   "visible",
		Opacity:      "1",
		OffsetWidth:  300,
		OffsetHeight: 34,
		Rect:         Rect{X: 10, Y: 20, Width: 300, Height: 34},
	}
}

func TestElement_Visible(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Element)
		want   bool
	}{
		{"rendered", func(*Element) {}, true},
		{"display none", func(e *Element) { e.Display = "none" }, false},
		{"visibility hidden", func(e *Element) { e.Visibility = "hidden" }, false},
		{"transparent", func(e *Element) { e.Opacity = "0" }, false},
		{"zero width", func(e *Element) { e.OffsetWidth = 0 }, false},
		{"zero height", func(e *Element) { e.OffsetHeight = 0 }, false},
		{"half transparent", func(e *Element) { e.Opacity = "0.5" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := visible("#nc_1_wrapper")
			tt.mutate(&el)
			if got := el.Visible(); got != tt.want {
				t.Errorf("Visible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetector_Challenge_VisibilityGate(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	hidden := visible("#nc_1_wrapper")
	hidden.Display = "none"
	zero := visible("span.nc_iconfont")
	zero.OffsetWidth, zero.OffsetHeight = 0, 0

	snap := Snapshot{Elements: map[string]Element{
		"#nc_1_wrapper":    hidden,
		"span.nc_iconfont": zero,
	}}

	if det, ok := d.Challenge(snap); ok {
		t.Errorf("Challenge() = %+v, want no detection for hidden elements", det)
	}
}

func TestDetector_Challenge_PriorityOrder(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	snap := Snapshot{Elements: map[string]Element{
		".nc-container":   visible(".nc-container"),
		"#nc_1_wrapper":   visible("#nc_1_wrapper"),
		"div.nc-lang-cnt": visible("div.nc-lang-cnt"),
	}}

	det, ok := d.Challenge(snap)
	if !ok {
		t.Fatal("Challenge() found nothing")
	}
	if det.Matcher != "#nc_1_wrapper" || det.Type != TypeSelector {
		t.Errorf("Challenge() = %s (%s), want #nc_1_wrapper selector match", det.Matcher, det.Type)
	}
}

func TestDetector_Challenge_PromptFallback(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	t.Run("phrase with visible slider", func(t *testing.T) {
		snap := Snapshot{
			Elements: map[string]Element{"#nc_1_n1t": visible("#nc_1_n1t")},
			Phrases:  map[string]bool{"向右滑动完成验证": true},
		}
		det, ok := d.Challenge(snap)
		if !ok || det.Type != TypePrompt || det.Element.Selector != "#nc_1_n1t" {
			t.Errorf("Challenge() = %+v, %v, want prompt match on #nc_1_n1t", det, ok)
		}
	})

	t.Run("phrase without slider", func(t *testing.T) {
		snap := Snapshot{Phrases: map[string]bool{"滑动验证": true}}
		if _, ok := d.Challenge(snap); ok {
			t.Error("Challenge() matched a phrase with no visible slider")
		}
	})

	t.Run("slider without phrase", func(t *testing.T) {
		snap := Snapshot{Elements: map[string]Element{".slide-verify-slider-mask": visible(".slide-verify-slider-mask")}}
		if _, ok := d.Challenge(snap); ok {
			t.Error("Challenge() matched a slider with no prompt phrase")
		}
	})
}

func TestDetector_Failure(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	tests := []struct {
		name string
		snap Snapshot
		want string
		ok   bool
	}{
		{"nothing", Snapshot{}, "", false},
		{"phrase", Snapshot{Phrases: map[string]bool{"验证超时": true}}, "验证超时", true},
		{"vendor code", Snapshot{Phrases: map[string]bool{"error:D2WXXu": true}}, "error:D2WXXu", true},
		{"banner text", Snapshot{BannerTexts: []string{"  哎呀，出错了，点击刷新再来一次(error:abc)  "}}, "哎呀，出错了，点击刷新再来一次(error:abc)", true},
		{"harmless banner", Snapshot{BannerTexts: []string{"请按住滑块，拖动到最右边"}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Failure(tt.snap)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Failure() = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetector_ConnectionError(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	if _, ok := d.ConnectionError(Snapshot{Phrases: map[string]bool{"验证失败": true}}); ok {
		t.Error("ConnectionError() matched a failure phrase")
	}
	got, ok := d.ConnectionError(Snapshot{Phrases: map[string]bool{"网络异常": true}})
	if !ok || got != "网络异常" {
		t.Errorf("ConnectionError() = %q, %v, want 网络异常", got, ok)
	}
}

func TestDetector_Fallback(t *testing.T) {
	d := NewDetector(DefaultSignatures())

	empty := visible("#nc_1_n1z")
	empty.Rect = Rect{}
	// Fallback only needs a box, so an element hidden by opacity still qualifies.
	faded := visible(`[class*="slider"]`)
	faded.Opacity = "0"

	snap := Snapshot{Elements: map[string]Element{
		"#nc_1_n1z":         empty,
		`[class*="slider"]`: faded,
	}}

	det, ok := d.Fallback(snap)
	if !ok || det.Matcher != `[class*="slider"]` || det.Type != TypeFallback {
		t.Errorf("Fallback() = %+v, %v", det, ok)
	}
}

func TestSignatures_ProbeListsUnique(t *testing.T) {
	sigs := DefaultSignatures()

	for name, list := range map[string][]string{
		"selectors": sigs.ProbeSelectors(),
		"phrases":   sigs.ProbePhrases(),
	} {
		seen := make(map[string]bool)
		for _, v := range list {
			if seen[v] {
				t.Errorf("%s: duplicate %q", name, v)
			}
			seen[v] = true
		}
	}

	// Every list the detector reads must be covered by the probe.
	probed := make(map[string]bool)
	for _, sel := range sigs.ProbeSelectors() {
		probed[sel] = true
	}
	for _, sel := range append(append([]string{}, sigs.ChallengeSelectors...), sigs.SliderSelectors...) {
		if !probed[sel] {
			t.Errorf("selector %q not probed", sel)
		}
	}
}

func TestRect_Center(t *testing.T) {
	x, y := Rect{X: 10, Y: 20, Width: 40, Height: 30}.Center()
	if x != 30 || y != 35 {
		t.Errorf("Center() = (%v, %v), want (30, 35)", x, y)
	}
}
