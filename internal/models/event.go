package models

import "time"

// EventType identifies the class of a system event on the bus.
type EventType string

const (
	EventInfrastructureDrift   EventType = "infrastructure_drift"
	EventResourceAnomaly       EventType = "resource_anomaly"
	EventIncidentDetected      EventType = "incident_detected"
	EventCostThresholdExceeded EventType = "cost_threshold_exceeded"
	EventScalingRequired       EventType = "scaling_required"
)

// Severity levels used by events, alerts and incidents.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank maps a severity string to its ordering
// (critical > high > medium > low). Unknown severities rank as low.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 1
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b string) string {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// SystemEvent is a signal delivered to subscribed agents through the
// event bus. Events are created by external sensors (or by agents
// re-emitting derived events) and consumed at most once per agent.
type SystemEvent struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	Source        string                 `json:"source"`
	Severity      string                 `json:"severity"` // low, medium, high, critical
	Data          map[string]interface{} `json:"data"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}
