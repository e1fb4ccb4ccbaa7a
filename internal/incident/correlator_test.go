package incident

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

var baseTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func makeAlert(id, source, severity, title string, at time.Time, labels map[string]string) *models.Alert {
	return &models.Alert{
		ID:        id,
		Source:    source,
		Severity:  severity,
		Title:     title,
		Timestamp: at,
		Labels:    labels,
	}
}

// groupAll labels every alert into one cluster.
type groupAll struct{}

func (groupAll) GroupLabels(_ context.Context, alerts []*models.Alert) []int {
	labels := make([]int, len(alerts))
	return labels
}

// allNoise labels every alert as noise.
type allNoise struct{}

func (allNoise) GroupLabels(_ context.Context, alerts []*models.Alert) []int {
	labels := make([]int, len(alerts))
	for i := range labels {
		labels[i] = NoiseLabel
	}
	return labels
}

func TestTimeWindowGroupingAnchorsAtGroupStart(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, groupAll{}, logger.NewNop())

	alerts := []*models.Alert{
		makeAlert("a1", "prometheus", models.SeverityLow, "cpu high", baseTime, nil),
		makeAlert("a2", "prometheus", models.SeverityLow, "cpu high", baseTime.Add(5*time.Minute), nil),
		makeAlert("a3", "prometheus", models.SeverityLow, "cpu high", baseTime.Add(20*time.Minute), nil),
	}

	groups := c.groupAlertsByTime(alerts)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Equal(t, "a3", groups[1][0].ID)
}

func TestTimeWindowGroupingSortsInput(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, groupAll{}, logger.NewNop())

	alerts := []*models.Alert{
		makeAlert("late", "s", models.SeverityLow, "t", baseTime.Add(10*time.Minute), nil),
		makeAlert("early", "s", models.SeverityLow, "t", baseTime, nil),
	}

	groups := c.groupAlertsByTime(alerts)
	require.Len(t, groups, 1)
	assert.Equal(t, "early", groups[0][0].ID)
}

func TestCorrelateSingletonAlert(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, groupAll{}, logger.NewNop())

	incidents := c.CorrelateAlerts(context.Background(), []*models.Alert{
		makeAlert("a1", "prometheus", models.SeverityHigh, "api-server is down", baseTime,
			map[string]string{"service": "api-server"}),
	})

	require.Len(t, incidents, 1)
	inc := incidents[0]
	assert.Equal(t, "api-server is down", inc.Title)
	assert.Equal(t, models.SeverityHigh, inc.Severity)
	assert.Equal(t, models.IncidentOpen, inc.Status)
	assert.Equal(t, []string{"api-server"}, inc.AffectedResources)
	assert.Equal(t, baseTime, inc.DetectedAt)
	assert.Equal(t, 1, inc.Metadata["alert_count"])
}

func TestCorrelateClusteredAlerts(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, groupAll{}, logger.NewNop())

	alerts := []*models.Alert{
		makeAlert("a1", "prometheus", models.SeverityLow, "cpu high", baseTime.Add(time.Minute),
			map[string]string{"resource": "node-1"}),
		makeAlert("a2", "grafana", models.SeverityCritical, "memory high", baseTime,
			map[string]string{"resource": "node-2"}),
		makeAlert("a3", "cloudwatch", models.SeverityMedium, "disk full", baseTime.Add(2*time.Minute),
			map[string]string{"service": "db"}),
		makeAlert("a4", "datadog", models.SeverityLow, "io wait", baseTime.Add(3*time.Minute), nil),
	}

	incidents := c.CorrelateAlerts(context.Background(), alerts)
	require.Len(t, incidents, 1)
	inc := incidents[0]

	// Max severity across the cluster, earliest detection time.
	assert.Equal(t, models.SeverityCritical, inc.Severity)
	assert.Equal(t, baseTime, inc.DetectedAt)
	assert.Equal(t, 4, inc.Metadata["alert_count"])

	// Four distinct sources: three named plus a "more sources" suffix.
	assert.Contains(t, inc.Title, "Multiple alerts from")
	assert.Contains(t, inc.Title, "and 1 more sources")
	assert.Contains(t, inc.Description, "Correlated incident from 4 alerts")
	assert.Contains(t, inc.Description, "and 1 more alerts")

	assert.ElementsMatch(t, []string{"node-1", "node-2", "db"}, inc.AffectedResources)
	assert.Len(t, inc.Alerts, 4)
}

func TestNoiseAlertsBecomeOwnIncidents(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, allNoise{}, logger.NewNop())

	alerts := []*models.Alert{
		makeAlert("a1", "prometheus", models.SeverityLow, "one thing", baseTime, nil),
		makeAlert("a2", "grafana", models.SeverityLow, "another thing", baseTime.Add(time.Minute), nil),
	}

	incidents := c.CorrelateAlerts(context.Background(), alerts)
	require.Len(t, incidents, 2)
	for _, inc := range incidents {
		assert.Len(t, inc.Alerts, 1)
	}
}

func TestCorrelateNoAlerts(t *testing.T) {
	c := NewAlertCorrelator(15*time.Minute, groupAll{}, logger.NewNop())
	assert.Nil(t, c.CorrelateAlerts(context.Background(), nil))
}
