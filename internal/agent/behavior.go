package agent

import (
	"context"

	"github.com/platformbuilds/opsagents/internal/models"
)

// Behavior is the fixed capability set an agent type plugs into the
// generic Runtime. One concrete Runtime composed with an injected
// Behavior replaces a specialized-agent inheritance chain.
//
// Contexts passed to StartSpecific are cancelled when the runtime
// stops; behaviors tie their background loops to that context and join
// them in StopSpecific.
type Behavior interface {
	// InitializeSpecific prepares agent-type state from configuration.
	// Errors are fatal and propagate out of Runtime.Initialize.
	InitializeSpecific(ctx context.Context, cfg *models.AgentConfig) error

	// StartSpecific launches agent-type background work. Errors abort
	// the start and roll the runtime back to a stopped state.
	StartSpecific(ctx context.Context) error

	// StopSpecific tears agent-type work down and waits for its loops.
	// Errors are logged by the runtime, never propagated.
	StopSpecific(ctx context.Context) error

	// HandleEvent processes one event and may yield at most one action.
	HandleEvent(ctx context.Context, event *models.SystemEvent) (*models.AgentAction, error)

	// ExecuteAction performs the agent-type part of action execution.
	ExecuteAction(ctx context.Context, action *models.AgentAction) (*models.ActionResult, error)

	// ReloadConfigSpecific applies a configuration change. Errors
	// propagate out of Runtime.ReloadConfig.
	ReloadConfigSpecific(ctx context.Context, oldCfg, newCfg *models.AgentConfig) error

	// SubscribedEventTypes lists the event types the runtime subscribes
	// to on start.
	SubscribedEventTypes() []models.EventType
}

// HealthChecker is an optional Behavior extension; when implemented,
// the runtime's health loop invokes it every interval.
type HealthChecker interface {
	PerformHealthCheck(ctx context.Context) error
}
