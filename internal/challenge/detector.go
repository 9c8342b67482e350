// Package challenge detects the slide verification widget and the site's error banners.
//
// Detection is a pure function of a Snapshot: the page layer runs one probe per poll and
// reports what it saw for every selector and phrase in the Signatures, and the Detector
// evaluates its ordered matchers over that report.
package challenge

import (
	"errors"
	"strings"
)

// ErrNoChallenge is returned when no challenge widget is visible on the page.
var ErrNoChallenge = errors.New("no challenge detected")

// Type is the way a challenge was found.
type Type string

const (
	// TypeNone indicates no challenge was detected.
	TypeNone Type = "none"
	// TypeSelector indicates a structural selector matched a visible widget.
	TypeSelector Type = "selector"
	// TypePrompt indicates a prompt phrase was found and a slider located from it.
	TypePrompt Type = "prompt"
	// TypeFallback indicates the broad scan of a forced test found a candidate.
	TypeFallback Type = "fallback"
)

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Element is the probe's report on the first element matching a selector.
type Element struct {
	Selector     string  `json:"selector"`
	Tag          string  `json:"tag"`
	ID           string  `json:"id"`
	Class        string  `json:"class"`
	Display      string  `json:"display"`
	Visibility   string  `json:"visibility"`
	Opacity      string  `json:"opacity"`
	OffsetWidth  float64 `json:"offsetWidth"`
	OffsetHeight float64 `json:"offsetHeight"`
	Rect         Rect    `json:"rect"`
}

// Visible reports whether the element is rendered: not display:none, not
// visibility:hidden, not fully transparent and with a non-zero layout box.
func (e Element) Visible() bool {
	return e.Display != "none" &&
		e.Visibility != "hidden" &&
		e.Opacity != "0" &&
		e.OffsetWidth > 0 &&
		e.OffsetHeight > 0
}

// HasArea reports whether the element's bounding box is non-empty.
func (e Element) HasArea() bool {
	return e.Rect.Width > 0 && e.Rect.Height > 0
}

// Snapshot is one read-only observation of a page.
type Snapshot struct {
	URL string `json:"url"`
	// Elements holds the first match per probed selector; selectors with no match are absent.
	Elements map[string]Element `json:"elements"`
	// Phrases holds the probed phrases found in the text of some element.
	Phrases map[string]bool `json:"phrases"`
	// BannerTexts holds the text content of every failure banner element.
	BannerTexts []string `json:"bannerTexts"`
}

// Detection describes a challenge found on the page.
type Detection struct {
	Type    Type    `json:"type"`
	Matcher string  `json:"matcher"`
	Element Element `json:"element"`
}

// Matcher is one prioritized predicate over a snapshot.
type Matcher struct {
	Name  string
	Type  Type
	Match func(Snapshot) (Element, bool)
}

// SelectorMatcher matches when the selector's element is visible.
func SelectorMatcher(selector string) Matcher {
	return Matcher{
		Name: selector,
		Type: TypeSelector,
		Match: func(s Snapshot) (Element, bool) {
			el, ok := s.Elements[selector]
			return el, ok && el.Visible()
		},
	}
}

// PromptMatcher matches when the phrase is present and one of sliders is visible.
func PromptMatcher(phrase string, sliders []string) Matcher {
	return Matcher{
		Name: phrase,
		Type: TypePrompt,
		Match: func(s Snapshot) (Element, bool) {
			if !s.Phrases[phrase] {
				return Element{}, false
			}
			return firstVisible(s, sliders)
		},
	}
}

func firstVisible(s Snapshot, selectors []string) (Element, bool) {
	for _, sel := range selectors {
		if el, ok := s.Elements[sel]; ok && el.Visible() {
			return el, true
		}
	}
	return Element{}, false
}

// Detector evaluates signatures against snapshots.
type Detector struct {
	sigs     Signatures
	matchers []Matcher
}

// NewDetector creates a detector whose challenge matchers are the structural selectors
// followed by the prompt phrases.
func NewDetector(sigs Signatures) *Detector {
	matchers := make([]Matcher, 0, len(sigs.ChallengeSelectors)+len(sigs.ChallengePhrases))
	for _, sel := range sigs.ChallengeSelectors {
		matchers = append(matchers, SelectorMatcher(sel))
	}
	for _, phrase := range sigs.ChallengePhrases {
		matchers = append(matchers, PromptMatcher(phrase, sigs.SliderSelectors))
	}
	return &Detector{sigs: sigs, matchers: matchers}
}

// Signatures returns the lists the detector was built from.
func (d *Detector) Signatures() Signatures {
	return d.sigs
}

// Challenge returns the first matcher hit, if any.
func (d *Detector) Challenge(s Snapshot) (Detection, bool) {
	for _, m := range d.matchers {
		if el, ok := m.Match(s); ok {
			return Detection{Type: m.Type, Matcher: m.Name, Element: el}, true
		}
	}
	return Detection{Type: TypeNone}, false
}

// Fallback scans the broad selector list for the first element with a non-empty box.
func (d *Detector) Fallback(s Snapshot) (Detection, bool) {
	for _, sel := range d.sigs.FallbackSelectors {
		if el, ok := s.Elements[sel]; ok && el.HasArea() {
			return Detection{Type: TypeFallback, Matcher: sel, Element: el}, true
		}
	}
	return Detection{Type: TypeNone}, false
}

// Failure returns the failure phrase or banner text found on the page.
func (d *Detector) Failure(s Snapshot) (string, bool) {
	for _, phrase := range d.sigs.FailurePhrases {
		if s.Phrases[phrase] {
			return phrase, true
		}
	}
	for _, text := range s.BannerTexts {
		for _, needle := range d.sigs.FailureNeedles {
			if strings.Contains(text, needle) {
				return strings.TrimSpace(text), true
			}
		}
	}
	return "", false
}

// ConnectionError returns the connection-error phrase found on the page.
func (d *Detector) ConnectionError(s Snapshot) (string, bool) {
	for _, phrase := range d.sigs.ConnectionPhrases {
		if s.Phrases[phrase] {
			return phrase, true
		}
	}
	return "", false
}
