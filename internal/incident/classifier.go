package incident

import (
	"context"
	"sort"
	"strings"

	"github.com/platformbuilds/opsagents/internal/models"
)

// Incident categories produced by classification. UnknownIncidentType
// is the fallback when no lexicon matches.
const (
	TypeServiceDown        = "service_down"
	TypeHighLatency        = "high_latency"
	TypeResourceExhaustion = "resource_exhaustion"
	TypeDatabaseIssue      = "database_issue"
	TypeNetworkIssue       = "network_issue"
	TypeSecurityIncident   = "security_incident"
	TypeDeploymentFailure  = "deployment_failure"
	TypeConfigurationError = "configuration_error"
	UnknownIncidentType    = "unknown"
)

// Classifier assigns a category and confidence to an incident.
type Classifier interface {
	Classify(ctx context.Context, incident *models.Incident) (incidentType string, confidence float64, err error)
}

// KeywordClassifier scores an incident's text against a per-category
// keyword lexicon. Confidence grows with the number of keyword hits
// and is clamped to [0.5, 0.95]; an incident matching no category is
// classified unknown at confidence 0.5.
type KeywordClassifier struct {
	lexicon map[string][]string
}

// NewKeywordClassifier builds a classifier with the default lexicon.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{lexicon: map[string][]string{
		TypeServiceDown:        {"down", "unresponsive", "crashed", "unavailable", "not responding", "500 error", "connection refused"},
		TypeHighLatency:        {"latency", "slow", "response time", "timeout", "performance degraded"},
		TypeResourceExhaustion: {"cpu", "memory", "disk", "storage", "exhausted", "usage above", "out of"},
		TypeDatabaseIssue:      {"database", "sql", "query", "deadlock", "replication"},
		TypeNetworkIssue:       {"network", "packet loss", "dns", "unreachable", "routing"},
		TypeSecurityIncident:   {"security", "breach", "unauthorized", "intrusion", "suspicious"},
		TypeDeploymentFailure:  {"deployment", "deploy failed", "rollout", "build failed", "image pull"},
		TypeConfigurationError: {"configuration", "config", "misconfigured", "invalid setting"},
	}}
}

// Classify scores the incident's combined text against every category
// and returns the best match.
func (c *KeywordClassifier) Classify(_ context.Context, incident *models.Incident) (string, float64, error) {
	text := incidentText(incident)

	bestType := UnknownIncidentType
	bestHits := 0

	// Stable iteration so ties resolve deterministically.
	categories := make([]string, 0, len(c.lexicon))
	for cat := range c.lexicon {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		hits := 0
		for _, kw := range c.lexicon[cat] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestType = cat
		}
	}

	if bestHits == 0 {
		return UnknownIncidentType, 0.5, nil
	}

	confidence := 0.5 + 0.15*float64(bestHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return bestType, confidence, nil
}

func incidentText(incident *models.Incident) string {
	var b strings.Builder
	b.WriteString(incident.Title)
	b.WriteByte(' ')
	b.WriteString(incident.Description)
	for _, a := range incident.Alerts {
		b.WriteByte(' ')
		b.WriteString(a.Title)
		b.WriteByte(' ')
		b.WriteString(a.Description)
	}
	return strings.ToLower(b.String())
}
