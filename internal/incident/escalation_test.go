package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

type recordingNotifier struct {
	calls   []string
	failAll bool
}

func (n *recordingNotifier) Notify(_ context.Context, channel string, _ *models.Incident, _ string) error {
	n.calls = append(n.calls, channel)
	if n.failAll {
		return errors.New("channel unavailable")
	}
	return nil
}

func newTestEscalationManager(notifier Notifier, at time.Time) *EscalationManager {
	m := NewEscalationManager("agent-1", nil, nil, notifier, logger.NewNop())
	m.now = func() time.Time { return at }
	return m
}

func openIncident(severity string, detectedAt time.Time) *models.Incident {
	return &models.Incident{
		ID:         "inc-1",
		Severity:   severity,
		Status:     models.IncidentOpen,
		DetectedAt: detectedAt,
	}
}

func TestCriticalIncidentEscalatesImmediately(t *testing.T) {
	now := baseTime
	m := newTestEscalationManager(nil, now)

	should, rule := m.ShouldEscalate(openIncident(models.SeverityCritical, now))
	require.True(t, should)
	assert.Equal(t, "critical_severity", rule)
}

func TestHighSeverityWaitsForDelay(t *testing.T) {
	detected := baseTime

	m := newTestEscalationManager(nil, detected.Add(2*time.Minute))
	should, _ := m.ShouldEscalate(openIncident(models.SeverityHigh, detected))
	assert.False(t, should)

	m = newTestEscalationManager(nil, detected.Add(6*time.Minute))
	should, rule := m.ShouldEscalate(openIncident(models.SeverityHigh, detected))
	require.True(t, should)
	assert.Equal(t, "high_severity_delayed", rule)
}

func TestOpenUnautomatedIncidentEscalatesAfterFifteenMinutes(t *testing.T) {
	detected := baseTime

	m := newTestEscalationManager(nil, detected.Add(10*time.Minute))
	should, _ := m.ShouldEscalate(openIncident(models.SeverityLow, detected))
	assert.False(t, should)

	m = newTestEscalationManager(nil, detected.Add(16*time.Minute))
	should, rule := m.ShouldEscalate(openIncident(models.SeverityLow, detected))
	require.True(t, should)
	assert.Equal(t, "automation_failed", rule)
}

func TestLongRunningRuleCoversAutomatedIncidents(t *testing.T) {
	detected := baseTime
	incident := openIncident(models.SeverityLow, detected)
	incident.AutomatedResolution = true

	m := newTestEscalationManager(nil, detected.Add(20*time.Minute))
	should, _ := m.ShouldEscalate(incident)
	assert.False(t, should)

	m = newTestEscalationManager(nil, detected.Add(31*time.Minute))
	should, rule := m.ShouldEscalate(incident)
	require.True(t, should)
	assert.Equal(t, "long_running_incident", rule)
}

func TestEscalateIncidentNotifiesAllChannels(t *testing.T) {
	notifier := &recordingNotifier{}
	m := newTestEscalationManager(notifier, baseTime)
	incident := openIncident(models.SeverityCritical, baseTime)

	result := m.EscalateIncident(context.Background(), incident, "critical_severity")

	require.True(t, result.Success)
	assert.True(t, incident.Escalated)
	assert.Equal(t, []string{"slack", "email", "pagerduty"}, notifier.calls)
	assert.Len(t, result.Notifications, 3)
}

func TestEscalateIncidentOnlyOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	m := newTestEscalationManager(notifier, baseTime)
	incident := openIncident(models.SeverityCritical, baseTime)

	first := m.EscalateIncident(context.Background(), incident, "critical_severity")
	require.True(t, first.Success)

	second := m.EscalateIncident(context.Background(), incident, "critical_severity")
	assert.False(t, second.Success)
	// No further notifications were sent.
	assert.Len(t, notifier.calls, 3)
}

func TestEscalationFailsWhenNoChannelDelivers(t *testing.T) {
	notifier := &recordingNotifier{failAll: true}
	m := newTestEscalationManager(notifier, baseTime)
	incident := openIncident(models.SeverityCritical, baseTime)

	result := m.EscalateIncident(context.Background(), incident, "critical_severity")

	assert.False(t, result.Success)
	// The escalated flag still flipped; the failure is about delivery.
	assert.True(t, incident.Escalated)
	for _, n := range result.Notifications {
		assert.False(t, n.Success)
	}
}
