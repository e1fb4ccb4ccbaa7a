package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/cache"
)

const (
	eventsKey  = "audit:events"
	actionsKey = "audit:actions"
	healthKey  = "audit:health:"

	trailLimit = 10000
)

// RedisAudit keeps the audit trail in bounded Redis lists so it
// survives restarts and is shared across replicas. Write failures
// propagate to the caller, who logs and continues; audit must never
// break control flow.
type RedisAudit struct {
	store cache.Store
}

// NewRedisAudit builds an audit sink over the cache store.
func NewRedisAudit(store cache.Store) *RedisAudit {
	return &RedisAudit{store: store}
}

type auditedAction struct {
	Action     *models.AgentAction  `json:"action"`
	Result     *models.ActionResult `json:"result,omitempty"`
	RecordedAt time.Time            `json:"recorded_at"`
}

type auditedHealth struct {
	AgentID    string               `json:"agent_id"`
	Status     *models.HealthStatus `json:"status"`
	RecordedAt time.Time            `json:"recorded_at"`
}

func (a *RedisAudit) LogEvent(ctx context.Context, event *models.SystemEvent) error {
	if err := a.store.PushBounded(ctx, eventsKey, event, trailLimit); err != nil {
		return fmt.Errorf("audit event %s: %w", event.ID, err)
	}
	return nil
}

func (a *RedisAudit) LogAction(ctx context.Context, action *models.AgentAction, result *models.ActionResult) error {
	entry := auditedAction{Action: action, Result: result, RecordedAt: time.Now().UTC()}
	if err := a.store.PushBounded(ctx, actionsKey, entry, trailLimit); err != nil {
		return fmt.Errorf("audit action %s: %w", action.ID, err)
	}
	return nil
}

func (a *RedisAudit) LogHealthStatus(ctx context.Context, agentID string, status *models.HealthStatus) error {
	entry := auditedHealth{AgentID: agentID, Status: status, RecordedAt: time.Now().UTC()}
	if err := a.store.PushBounded(ctx, healthKey+agentID, entry, trailLimit); err != nil {
		return fmt.Errorf("audit health for agent %s: %w", agentID, err)
	}
	return nil
}

// RecentEvents returns up to n most recent audited event payloads,
// newest first.
func (a *RedisAudit) RecentEvents(ctx context.Context, n int64) ([]string, error) {
	return a.store.Range(ctx, eventsKey, 0, n-1)
}

// RecentActions returns up to n most recent audited action payloads,
// newest first.
func (a *RedisAudit) RecentActions(ctx context.Context, n int64) ([]string, error) {
	return a.store.Range(ctx, actionsKey, 0, n-1)
}
