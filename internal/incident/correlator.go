package incident

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// DefaultCorrelationWindow is the time span within which alerts are
// eligible to be grouped into the same incident.
const DefaultCorrelationWindow = 15 * time.Minute

// AlertCorrelator buffers raw alerts into time-window groups and
// clusters each group into candidate incidents.
type AlertCorrelator struct {
	window  time.Duration
	grouper SimilarityGrouper
	logger  logging.Logger
}

// NewAlertCorrelator builds a correlator. A zero window falls back to
// the default; a nil grouper falls back to the built-in feature
// grouper.
func NewAlertCorrelator(window time.Duration, grouper SimilarityGrouper, log corelogger.Logger) *AlertCorrelator {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	if grouper == nil {
		grouper = NewFeatureGrouper(0)
	}
	return &AlertCorrelator{
		window:  window,
		grouper: grouper,
		logger:  logging.FromCoreLogger(log),
	}
}

// CorrelateAlerts partitions alerts into time-window groups, clusters
// each group by similarity and returns the resulting incidents.
func (c *AlertCorrelator) CorrelateAlerts(ctx context.Context, alerts []*models.Alert) []*models.Incident {
	if len(alerts) == 0 {
		return nil
	}

	var incidents []*models.Incident
	for _, group := range c.groupAlertsByTime(alerts) {
		incidents = append(incidents, c.correlateGroup(ctx, group)...)
	}

	c.logger.Debug("Correlated alerts into incidents", "alerts", len(alerts), "incidents", len(incidents))
	return incidents
}

// groupAlertsByTime sorts alerts by timestamp and greedily partitions
// them: a new group starts whenever an alert's timestamp exceeds the
// current group's START time plus the correlation window (not the
// previous alert's timestamp).
func (c *AlertCorrelator) groupAlertsByTime(alerts []*models.Alert) [][]*models.Alert {
	sorted := make([]*models.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		groups      [][]*models.Alert
		current     []*models.Alert
		windowStart time.Time
	)

	for _, alert := range sorted {
		switch {
		case len(current) == 0:
			windowStart = alert.Timestamp
			current = []*models.Alert{alert}
		case alert.Timestamp.Sub(windowStart) <= c.window:
			current = append(current, alert)
		default:
			groups = append(groups, current)
			current = []*models.Alert{alert}
			windowStart = alert.Timestamp
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// correlateGroup clusters one time-window group. A single alert
// becomes a singleton incident directly; larger groups go through the
// similarity grouper, with noise-labelled alerts each becoming their
// own incident.
func (c *AlertCorrelator) correlateGroup(ctx context.Context, group []*models.Alert) []*models.Incident {
	if len(group) == 1 {
		return []*models.Incident{c.newIncident(group)}
	}

	labels := c.grouper.GroupLabels(ctx, group)
	if len(labels) != len(group) {
		// Defensive fallback per the grouping contract: when the
		// capability misbehaves, every alert stands alone.
		c.logger.Warn("Similarity grouper returned mismatched labels", "alerts", len(group), "labels", len(labels))
		incidents := make([]*models.Incident, 0, len(group))
		for _, alert := range group {
			incidents = append(incidents, c.newIncident([]*models.Alert{alert}))
		}
		return incidents
	}

	clustered := make(map[int][]*models.Alert)
	var incidents []*models.Incident
	for i, label := range labels {
		if label == NoiseLabel {
			incidents = append(incidents, c.newIncident([]*models.Alert{group[i]}))
			continue
		}
		clustered[label] = append(clustered[label], group[i])
	}

	// Deterministic output order for clustered incidents.
	clusterIDs := make([]int, 0, len(clustered))
	for id := range clustered {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)
	for _, id := range clusterIDs {
		incidents = append(incidents, c.newIncident(clustered[id]))
	}

	return incidents
}

// newIncident builds an incident from one cluster of alerts:
// severity is the maximum alert severity, title and description
// summarize up to three sources/alerts with a "+N more" suffix,
// affected resources are the union of resource/service labels and
// detected-at is the earliest alert timestamp.
func (c *AlertCorrelator) newIncident(alerts []*models.Alert) *models.Incident {
	severity := models.SeverityLow
	detectedAt := alerts[0].Timestamp
	for _, a := range alerts {
		severity = models.MaxSeverity(severity, a.Severity)
		if a.Timestamp.Before(detectedAt) {
			detectedAt = a.Timestamp
		}
	}

	var title, description string
	if len(alerts) == 1 {
		title = alerts[0].Title
		description = alerts[0].Description
	} else {
		sources := distinctSources(alerts)
		title = fmt.Sprintf("Multiple alerts from %s", strings.Join(truncate(sources, 3), ", "))
		if len(sources) > 3 {
			title += fmt.Sprintf(" and %d more sources", len(sources)-3)
		}

		parts := make([]string, 0, 3)
		for _, a := range alerts[:minInt(3, len(alerts))] {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Source, a.Title))
		}
		description = fmt.Sprintf("Correlated incident from %d alerts: %s", len(alerts), strings.Join(parts, "; "))
		if len(alerts) > 3 {
			description += fmt.Sprintf(" and %d more alerts", len(alerts)-3)
		}
	}

	resourceSet := make(map[string]struct{})
	for _, a := range alerts {
		for _, key := range []string{"resource", "service"} {
			if v, ok := a.Labels[key]; ok && v != "" {
				resourceSet[v] = struct{}{}
			}
		}
	}
	resources := make([]string, 0, len(resourceSet))
	for r := range resourceSet {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	return &models.Incident{
		ID:                uuid.NewString(),
		Title:             title,
		Description:       description,
		Severity:          severity,
		Status:            models.IncidentOpen,
		AffectedResources: resources,
		Alerts:            alerts,
		DetectedAt:        detectedAt,
		Metadata: map[string]interface{}{
			"alert_count": len(alerts),
			"sources":     distinctSources(alerts),
		},
	}
}

func distinctSources(alerts []*models.Alert) []string {
	seen := make(map[string]struct{})
	var sources []string
	for _, a := range alerts {
		if _, ok := seen[a.Source]; !ok {
			seen[a.Source] = struct{}{}
			sources = append(sources, a.Source)
		}
	}
	return sources
}

func truncate(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
