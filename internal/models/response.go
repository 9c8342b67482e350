package models

import "time"

// RefreshStatus is the live status of one tab.
type RefreshStatus struct {
	IsActive         bool           `json:"isActive"`
	Stats            Stats          `json:"stats"`
	Config           *RefreshConfig `json:"config"`
	NextRefreshTime  *int64         `json:"nextRefreshTime"` // Unix timestamp ms
	RemainingSeconds int            `json:"remainingSeconds"`
	// TimerLive is false when only the durable record claims the tab is active,
	// meaning a recovery path still has to re-arm it.
	TimerLive bool `json:"timerLive"`
}

// CommandResponse answers a CommandRequest.
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	*RefreshStatus
}

// TabInfo describes one open browser tab.
type TabInfo struct {
	TabID    TabID         `json:"tabId"`
	URL      string        `json:"url"`
	Title    string        `json:"title,omitempty"`
	IsTarget bool          `json:"isTarget"`
	Status   RefreshStatus `json:"status"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	TrackedTabs    int    `json:"trackedTabs"`
	ActiveSessions int    `json:"activeSessions"`
	Uptime         int64  `json:"uptimeSeconds"`
}

// NewErrorResponse creates a failed command response.
func NewErrorResponse(message string) *CommandResponse {
	return &CommandResponse{Success: false, Message: message}
}

// NewSuccessResponse creates a successful command response.
func NewSuccessResponse() *CommandResponse {
	return &CommandResponse{Success: true}
}

// UnixMilli converts a non-zero time into a pointer to its unix millisecond value.
func UnixMilli(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
