package models

import "time"

// Incident status values.
const (
	IncidentOpen     = "open"
	IncidentResolved = "resolved"
)

// Incident is a correlated group of one or more alerts representing a
// single operational problem. An incident is exclusively owned by the
// agent instance that created it until it is resolved (removed from
// the active set) or permanently flagged escalated.
type Incident struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	Severity            string                 `json:"severity"` // max severity among alerts
	Status              string                 `json:"status"`   // open, resolved
	AffectedResources   []string               `json:"affected_resources"`
	Alerts              []*Alert               `json:"alerts"`
	DetectedAt          time.Time              `json:"detected_at"`
	ResolvedAt          *time.Time             `json:"resolved_at,omitempty"`
	ResolutionSteps     []string               `json:"resolution_steps,omitempty"`
	AutomatedResolution bool                   `json:"automated_resolution"`
	Escalated           bool                   `json:"escalated"`
	RootCause           string                 `json:"root_cause,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// Duration is the incident age: time since detection, or detection to
// resolution once resolved.
func (i *Incident) Duration(now time.Time) time.Duration {
	if i.ResolvedAt != nil {
		return i.ResolvedAt.Sub(i.DetectedAt)
	}
	return now.Sub(i.DetectedAt)
}

// MarkEscalated flips the escalated flag. The flag transitions
// false -> true at most once; repeated calls return false and change
// nothing.
func (i *Incident) MarkEscalated(reason string, at time.Time) bool {
	if i.Escalated {
		return false
	}
	i.Escalated = true
	if i.Metadata == nil {
		i.Metadata = make(map[string]interface{})
	}
	i.Metadata["escalation_reason"] = reason
	i.Metadata["escalated_at"] = at.UTC().Format(time.RFC3339)
	return true
}

// Resolve marks the incident resolved at the given time.
func (i *Incident) Resolve(at time.Time, automated bool, steps []string) {
	t := at
	i.Status = IncidentResolved
	i.ResolvedAt = &t
	i.AutomatedResolution = automated
	i.ResolutionSteps = steps
}
