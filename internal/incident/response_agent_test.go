package incident

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

type recordingBus struct {
	mu      sync.Mutex
	events  []*models.SystemEvent
	actions []*models.AgentAction
}

func (b *recordingBus) PublishEvent(_ context.Context, event *models.SystemEvent) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Subscribe(context.Context, []models.EventType, agent.EventHandler) error {
	return nil
}

func (b *recordingBus) PublishAction(_ context.Context, action *models.AgentAction) error {
	b.mu.Lock()
	b.actions = append(b.actions, action)
	b.mu.Unlock()
	return nil
}

func responseAgentConfig(thresholds map[string]float64) *models.AgentConfig {
	return &models.AgentConfig{
		ID:         "ir-1",
		Name:       "incident response",
		Type:       models.AgentIncidentResponse,
		Enabled:    true,
		Thresholds: thresholds,
	}
}

func newTestResponseAgent(t *testing.T, extras ResponseAgentDeps, thresholds map[string]float64) (*ResponseAgent, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	a := NewResponseAgent("ir-1", agent.Dependencies{Bus: bus, Logger: logger.NewNop()}, extras)
	require.NoError(t, a.InitializeSpecific(context.Background(), responseAgentConfig(thresholds)))
	return a, bus
}

func downAlert(id string, at time.Time) *models.Alert {
	return &models.Alert{
		ID:        id,
		Source:    "prometheus",
		Severity:  models.SeverityHigh,
		Title:     "checkout service down",
		Timestamp: at,
		Labels:    map[string]string{"service": "checkout"},
	}
}

func TestAlertFlowProducesSingleIncident(t *testing.T) {
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{}, nil)
	ctx := context.Background()

	a.BufferAlert(downAlert("a1", baseTime))
	a.BufferAlert(downAlert("a2", baseTime.Add(time.Minute)))
	alert3 := downAlert("a3", baseTime.Add(2*time.Minute))
	alert3.Severity = models.SeverityCritical
	a.BufferAlert(alert3)

	incidents := a.FlushAlerts(ctx)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, 3, inc.Metadata["alert_count"])
	assert.Equal(t, models.SeverityCritical, inc.Severity)
	assert.Equal(t, TypeServiceDown, inc.Metadata["incident_type"])
	assert.Equal(t, []string{"checkout"}, inc.AffectedResources)

	// The incident is registered and announced on the bus.
	assert.Contains(t, a.ActiveIncidents(), inc.ID)
	require.Len(t, bus.events, 1)
	assert.Equal(t, models.EventIncidentDetected, bus.events[0].Type)
	assert.Equal(t, inc.ID, bus.events[0].Data["incident_id"])

	// The buffer drained; a second flush is a no-op.
	assert.Nil(t, a.FlushAlerts(ctx))
}

func TestAnomalyEventsAreBuffered(t *testing.T) {
	a, _ := newTestResponseAgent(t, ResponseAgentDeps{}, nil)

	action, err := a.HandleEvent(context.Background(), &models.SystemEvent{
		ID:        "e-1",
		Type:      models.EventResourceAnomaly,
		Source:    "node-monitor",
		Severity:  models.SeverityMedium,
		Data:      map[string]interface{}{"resource": "node-4", "description": "cpu spike"},
		Timestamp: baseTime,
	})
	require.NoError(t, err)
	assert.Nil(t, action)

	incidents := a.FlushAlerts(context.Background())
	require.Len(t, incidents, 1)
	assert.Equal(t, []string{"node-4"}, incidents[0].AffectedResources)
}

func TestIncidentDetectionEmitsResolutionAction(t *testing.T) {
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{}, nil)
	ctx := context.Background()

	a.BufferAlert(downAlert("a1", baseTime))
	incidents := a.FlushAlerts(ctx)
	require.Len(t, incidents, 1)

	action, err := a.HandleEvent(ctx, bus.events[0])
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, models.ActionIncidentResolve, action.Type)
	assert.Equal(t, models.ActionPending, action.Status)
	// High severity incident maps to a medium-risk resolution.
	assert.Equal(t, models.RiskMedium, action.RiskLevel)
	assert.Equal(t, incidents[0].ID, action.Metadata["incident_id"])
	assert.Equal(t, "service_down_basic", action.Metadata["runbook_id"])
}

func TestCooldownSuppressesSecondRecommendation(t *testing.T) {
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{}, nil)
	ctx := context.Background()

	a.BufferAlert(downAlert("a1", baseTime))
	require.Len(t, a.FlushAlerts(ctx), 1)

	first, err := a.HandleEvent(ctx, bus.events[0])
	require.NoError(t, err)
	require.NotNil(t, first)

	// A fresh incident on the same resource within the cooldown window
	// yields no action.
	a.BufferAlert(downAlert("a2", baseTime.Add(time.Minute)))
	require.Len(t, a.FlushAlerts(ctx), 1)

	second, err := a.HandleEvent(ctx, bus.events[1])
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestAutoResolutionDisabledSkipsRemediation(t *testing.T) {
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{}, map[string]float64{
		"auto_resolution_enabled": 0,
	})
	ctx := context.Background()

	a.BufferAlert(downAlert("a1", baseTime))
	require.Len(t, a.FlushAlerts(ctx), 1)

	action, err := a.HandleEvent(ctx, bus.events[0])
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestResolutionSuccessRetiresIncident(t *testing.T) {
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{}, nil)
	ctx := context.Background()

	a.BufferAlert(downAlert("a1", baseTime))
	incidents := a.FlushAlerts(ctx)
	require.Len(t, incidents, 1)

	action, err := a.HandleEvent(ctx, bus.events[0])
	require.NoError(t, err)
	require.NotNil(t, action)

	result, err := a.ExecuteAction(ctx, action)
	require.NoError(t, err)
	require.True(t, result.Success)

	inc := incidents[0]
	assert.Equal(t, models.IncidentResolved, inc.Status)
	assert.True(t, inc.AutomatedResolution)
	assert.NotEmpty(t, inc.ResolutionSteps)
	assert.NotContains(t, a.ActiveIncidents(), inc.ID)
}

func TestRepeatedFailuresForceEscalation(t *testing.T) {
	notifier := &recordingNotifier{}
	a, bus := newTestResponseAgent(t, ResponseAgentDeps{
		Notifier: notifier,
	}, map[string]float64{"max_resolution_attempts": 2})
	ctx := context.Background()

	// A preferred runbook whose criteria name nothing the executor can
	// verify never scores as successful.
	a.executor.AddRunbook(&models.Runbook{
		ID:               "service_down_manual_check",
		Name:             "Recovery With Manual Verification",
		IncidentPatterns: []string{TypeServiceDown},
		Steps: []models.RunbookStep{
			{Type: "remediation", Description: "restart", Command: "restart {service_name}", Critical: true},
		},
		SuccessCriteria: []string{"Operator confirms the dashboard is green"},
		SuccessRate:     0.99,
	})

	a.BufferAlert(downAlert("a1", baseTime))
	incidents := a.FlushAlerts(ctx)
	require.Len(t, incidents, 1)
	inc := incidents[0]

	action, err := a.HandleEvent(ctx, bus.events[0])
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, "service_down_manual_check", action.Metadata["runbook_id"])

	result, err := a.ExecuteAction(ctx, action)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "success criteria not met")
	assert.False(t, inc.Escalated)
	assert.Equal(t, 1, inc.Metadata["resolution_attempts"])

	// Second failure reaches the attempt ceiling and forces escalation.
	result, err = a.ExecuteAction(ctx, action)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, inc.Escalated)
	assert.Equal(t, 2, inc.Metadata["resolution_attempts"])
	assert.NotEmpty(t, notifier.calls)

	// The incident stays active for a human to pick up.
	assert.Contains(t, a.ActiveIncidents(), inc.ID)
}

func TestReloadSameConfigKeepsDerivedSettings(t *testing.T) {
	thresholds := map[string]float64{
		"correlation_interval":    120,
		"max_resolution_attempts": 5,
	}
	a, _ := newTestResponseAgent(t, ResponseAgentDeps{}, thresholds)
	ctx := context.Background()

	cfg := responseAgentConfig(thresholds)
	require.NoError(t, a.ReloadConfigSpecific(ctx, cfg, cfg))
	require.NoError(t, a.ReloadConfigSpecific(ctx, cfg, cfg))

	a.mu.Lock()
	interval := a.correlationInterval
	attempts := a.maxResolutionAttempts
	a.mu.Unlock()
	assert.Equal(t, 2*time.Minute, interval)
	assert.Equal(t, 5, attempts)
}

func TestUnsupportedActionType(t *testing.T) {
	a, _ := newTestResponseAgent(t, ResponseAgentDeps{}, nil)

	result, err := a.ExecuteAction(context.Background(), &models.AgentAction{
		ID:   "act-1",
		Type: models.ActionScale,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unsupported action type")
}

func TestEscalationSweep(t *testing.T) {
	notifier := &recordingNotifier{}
	a, _ := newTestResponseAgent(t, ResponseAgentDeps{Notifier: notifier}, nil)
	ctx := context.Background()

	critical := downAlert("a1", time.Now().UTC())
	critical.Severity = models.SeverityCritical
	a.BufferAlert(critical)
	incidents := a.FlushAlerts(ctx)
	require.Len(t, incidents, 1)

	a.SweepEscalations(ctx)
	assert.True(t, incidents[0].Escalated)

	// A second sweep does not re-notify.
	sent := len(notifier.calls)
	a.SweepEscalations(ctx)
	assert.Equal(t, sent, len(notifier.calls))
}
