// Audit sinks for agent events, actions and health snapshots.

package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
)

// LogAudit writes the audit trail to the structured log. It is the
// default sink when no Redis endpoint is configured.
type LogAudit struct {
	logger *zap.Logger
}

// NewLogAudit builds an audit sink over the core logger's zap backend.
func NewLogAudit(core interface{}) *LogAudit {
	return &LogAudit{logger: logging.ExtractZapLogger(core)}
}

func (a *LogAudit) LogEvent(_ context.Context, event *models.SystemEvent) error {
	a.logger.Info("audit.event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("source", event.Source),
		zap.String("severity", event.Severity),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

func (a *LogAudit) LogAction(_ context.Context, action *models.AgentAction, result *models.ActionResult) error {
	fields := []zap.Field{
		zap.String("action_id", action.ID),
		zap.String("agent_id", action.AgentID),
		zap.String("action_type", string(action.Type)),
		zap.String("status", string(action.Status)),
		zap.String("risk_level", string(action.RiskLevel)),
	}
	if result != nil {
		fields = append(fields,
			zap.Bool("success", result.Success),
			zap.Duration("execution_time", result.ExecutionTime),
		)
		if result.Error != "" {
			fields = append(fields, zap.String("error", result.Error))
		}
	}
	a.logger.Info("audit.action", fields...)
	return nil
}

func (a *LogAudit) LogHealthStatus(_ context.Context, agentID string, status *models.HealthStatus) error {
	a.logger.Info("audit.health",
		zap.String("agent_id", agentID),
		zap.String("status", string(status.Status)),
		zap.Int("error_count", status.ErrorCount),
		zap.Time("last_heartbeat", status.LastHeartbeat),
	)
	return nil
}
