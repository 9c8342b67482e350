package models

import "time"

// TabID identifies a browser tab. With rod this is the CDP target id.
type TabID string

// State is the scheduling state of a tab's session.
type State int

const (
	// StateStopped means no reload timer is pending.
	StateStopped State = iota
	// StateScheduled means exactly one reload timer is pending.
	StateScheduled
)

func (s State) String() string {
	if s == StateScheduled {
		return "scheduled"
	}
	return "stopped"
}

// Session is the per-tab scheduling record.
type Session struct {
	TabID       TabID
	State       State
	MinInterval int
	MaxInterval int
	NextFireAt  time.Time // zero when stopped
}

// Stats holds the per-tab counters. It is persisted as stats_<tabId>.
type Stats struct {
	RefreshCount int        `json:"refreshCount"`
	VerifyCount  int        `json:"verifyCount"`
	LastRefresh  *time.Time `json:"lastRefresh"`
	StartTime    time.Time  `json:"startTime"`
}

// NewStats returns zeroed counters stamped with the given start time.
func NewStats(now time.Time) Stats {
	return Stats{StartTime: now}
}

// RefreshConfig is the durable per-tab configuration persisted as refresh_<tabId>.
type RefreshConfig struct {
	Active      bool `json:"active"`
	MinInterval int  `json:"minInterval,omitempty"`
	MaxInterval int  `json:"maxInterval,omitempty"`
}

// GlobalConfig is the process-wide configuration persisted as globalConfig.
type GlobalConfig struct {
	MinInterval int  `json:"minInterval"`
	MaxInterval int  `json:"maxInterval"`
	AutoEnable  bool `json:"autoEnable"`
}

// DefaultGlobalConfig returns the built-in defaults used when no record exists.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{MinInterval: 45, MaxInterval: 60, AutoEnable: true}
}

// WithDefaults fills zero bounds from the defaults, as the recovery path does
// for records written without bounds.
func (c RefreshConfig) WithDefaults(def GlobalConfig) RefreshConfig {
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	return c
}
