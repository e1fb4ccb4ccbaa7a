package agent

import (
	"context"

	"github.com/platformbuilds/opsagents/internal/models"
)

// EventHandler receives a system event delivered by the bus.
type EventHandler func(ctx context.Context, event *models.SystemEvent)

// EventBus delivers events to subscribed agents and accepts published
// actions. Implementations live outside the core; internal/bus ships
// an in-process default.
type EventBus interface {
	PublishEvent(ctx context.Context, event *models.SystemEvent) error
	Subscribe(ctx context.Context, eventTypes []models.EventType, handler EventHandler) error
	PublishAction(ctx context.Context, action *models.AgentAction) error
}

// ConfigChangeCallback is invoked when a watched agent configuration
// changes.
type ConfigChangeCallback func(ctx context.Context, newConfig *models.AgentConfig)

// ConfigurationService loads and persists agent configuration and
// notifies watchers of changes.
type ConfigurationService interface {
	LoadConfig(ctx context.Context, agentID string) (*models.AgentConfig, error)
	LoadAllConfigs(ctx context.Context) (map[string]*models.AgentConfig, error)
	SaveConfig(ctx context.Context, config *models.AgentConfig) error
	WatchConfigChanges(ctx context.Context, agentID string, callback ConfigChangeCallback) error
}

// AuditService records events, actions and health snapshots. Audit
// failures must never break agent control flow; callers log and
// continue.
type AuditService interface {
	LogEvent(ctx context.Context, event *models.SystemEvent) error
	LogAction(ctx context.Context, action *models.AgentAction, result *models.ActionResult) error
	LogHealthStatus(ctx context.Context, agentID string, status *models.HealthStatus) error
}
