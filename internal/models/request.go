// Package models defines the domain records and the control API request and response types.
package models

// Actions accepted on the command channel.
const (
	ActionStartRefresh     = "startRefresh"
	ActionStopRefresh      = "stopRefresh"
	ActionGetRefreshStatus = "getRefreshStatus"
	ActionVerifyCompleted  = "verifyCompleted"
	ActionResetStats       = "resetStats"
	ActionTestSlider       = "testSlider"
)

// CommandRequest is a message sent to the agent by the control panel.
type CommandRequest struct {
	Action      string `json:"action" doc:"startRefresh | stopRefresh | getRefreshStatus | verifyCompleted | resetStats | testSlider"`
	TabID       TabID  `json:"tabId,omitempty"`
	MinInterval int    `json:"minInterval,omitempty" doc:"Lower bound in seconds (startRefresh)"`
	MaxInterval int    `json:"maxInterval,omitempty" doc:"Upper bound in seconds (startRefresh)"`
}

// GlobalConfigRequest updates the process-wide configuration.
type GlobalConfigRequest struct {
	MinInterval int   `json:"minInterval"`
	MaxInterval int   `json:"maxInterval"`
	AutoEnable  *bool `json:"autoEnable,omitempty" doc:"Defaults to true when omitted"`
}
