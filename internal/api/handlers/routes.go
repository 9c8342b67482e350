package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/refresh-agent/internal/models"
)

// CommandInput is the input for command requests.
type CommandInput struct {
	Body models.CommandRequest
}

// CommandOutput is the output for command requests.
type CommandOutput struct {
	Body models.CommandResponse
}

// ConfigInput is the input for global config updates.
type ConfigInput struct {
	Body models.GlobalConfigRequest
}

// ConfigOutput is the output for global config requests.
type ConfigOutput struct {
	Body models.GlobalConfig
}

// TabsOutput is the output for tab listings.
type TabsOutput struct {
	Body []models.TabInfo
}

// RegisterHealth registers the unauthenticated health endpoint.
func RegisterHealth(api huma.API, health *HealthHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns health status and session counts",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		resp := health.Handle(ctx)
		return &HealthOutput{Body: *resp}, nil
	})
}

// RegisterControl registers the control panel endpoints. tabs may be nil when no
// browser is attached.
func RegisterControl(api huma.API, commands *CommandHandler, cfg *ConfigHandler, tabs *TabsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "command",
		Method:      http.MethodPost,
		Path:        "/v1",
		Summary:     "Send a command",
		Description: "Dispatches a control panel command on its action field",
		Tags:        []string{"Control"},
	}, func(ctx context.Context, input *CommandInput) (*CommandOutput, error) {
		resp := commands.Handle(ctx, &input.Body)
		return &CommandOutput{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getConfig",
		Method:      http.MethodGet,
		Path:        "/v1/config",
		Summary:     "Get global config",
		Tags:        []string{"Config"},
	}, func(ctx context.Context, input *struct{}) (*ConfigOutput, error) {
		return &ConfigOutput{Body: cfg.Get(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "putConfig",
		Method:      http.MethodPut,
		Path:        "/v1/config",
		Summary:     "Update global config",
		Description: "Replaces the default interval bounds and auto-enable flag",
		Tags:        []string{"Config"},
	}, func(ctx context.Context, input *ConfigInput) (*ConfigOutput, error) {
		global, err := cfg.Put(ctx, &input.Body)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return &ConfigOutput{Body: global}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listTabs",
		Method:      http.MethodGet,
		Path:        "/v1/tabs",
		Summary:     "List tabs",
		Description: "Lists open tabs with their refresh status",
		Tags:        []string{"Control"},
	}, func(ctx context.Context, input *struct{}) (*TabsOutput, error) {
		if tabs == nil {
			return nil, huma.Error503ServiceUnavailable("no browser attached")
		}
		list, err := tabs.Handle(ctx)
		if err != nil {
			return nil, huma.Error502BadGateway("failed to list tabs", err)
		}
		return &TabsOutput{Body: list}, nil
	})
}
