package incident

import (
	"context"
	"time"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/metrics"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// RuleKind selects the predicate an escalation rule evaluates.
type RuleKind string

const (
	RuleCriticalSeverity RuleKind = "critical_severity"
	RuleHighSeverity     RuleKind = "high_severity"
	RuleFailedAutomation RuleKind = "failed_automation"
	RuleLongRunning      RuleKind = "long_running"
)

// EscalationRule pairs a predicate kind with the delay that must
// elapse since detection before the rule fires.
type EscalationRule struct {
	Kind              RuleKind
	Name              string
	Delay             time.Duration
	NotificationLevel string
}

// DefaultEscalationRules returns the built-in rule set, evaluated in
// order; the first match wins.
func DefaultEscalationRules() []EscalationRule {
	return []EscalationRule{
		{Kind: RuleCriticalSeverity, Name: "critical_severity", Delay: 0, NotificationLevel: "immediate"},
		{Kind: RuleHighSeverity, Name: "high_severity_delayed", Delay: 5 * time.Minute, NotificationLevel: "urgent"},
		{Kind: RuleFailedAutomation, Name: "automation_failed", Delay: 15 * time.Minute, NotificationLevel: "standard"},
		{Kind: RuleLongRunning, Name: "long_running_incident", Delay: 0, NotificationLevel: "standard"},
	}
}

// longRunningAge is the incident age past which the long-running rule
// matches regardless of severity.
const longRunningAge = 30 * time.Minute

// NotificationRecord is the outcome of one channel notification.
type NotificationRecord struct {
	Channel string    `json:"channel"`
	SentAt  time.Time `json:"sent_at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// EscalationResult records one escalation attempt.
type EscalationResult struct {
	IncidentID    string               `json:"incident_id"`
	EscalatedAt   time.Time            `json:"escalated_at"`
	Reason        string               `json:"reason"`
	Notifications []NotificationRecord `json:"notifications"`
	Success       bool                 `json:"success"`
}

// Notifier delivers an escalation notification on one channel.
type Notifier interface {
	Notify(ctx context.Context, channel string, incident *models.Incident, reason string) error
}

// LogNotifier is the default notifier: it records the notification in
// the log and always succeeds. Deployments wire real channel
// integrations instead.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(log corelogger.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.FromCoreLogger(log)}
}

func (n *LogNotifier) Notify(_ context.Context, channel string, incident *models.Incident, reason string) error {
	n.logger.Info("Escalation notification", "channel", channel, "incident_id", incident.ID, "severity", incident.Severity, "reason", reason)
	return nil
}

// EscalationManager decides when open incidents need human attention
// and fans the notification out across the configured channels.
type EscalationManager struct {
	agentID  string
	rules    []EscalationRule
	channels []string
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time
}

// NewEscalationManager builds a manager. Nil rules, channels or
// notifier fall back to the defaults.
func NewEscalationManager(agentID string, rules []EscalationRule, channels []string, notifier Notifier, log corelogger.Logger) *EscalationManager {
	if rules == nil {
		rules = DefaultEscalationRules()
	}
	if channels == nil {
		channels = []string{"slack", "email", "pagerduty"}
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &EscalationManager{
		agentID:  agentID,
		rules:    rules,
		channels: channels,
		notifier: notifier,
		logger:   logging.FromCoreLogger(log),
		now:      time.Now,
	}
}

// ShouldEscalate evaluates the rules in order and returns the name of
// the first rule whose predicate matches and whose delay has elapsed
// since detection.
func (m *EscalationManager) ShouldEscalate(incident *models.Incident) (bool, string) {
	now := m.now().UTC()
	age := incident.Duration(now)

	for _, rule := range m.rules {
		if !m.ruleMatches(rule, incident, age) {
			continue
		}
		if age < rule.Delay {
			continue
		}
		return true, rule.Name
	}
	return false, ""
}

func (m *EscalationManager) ruleMatches(rule EscalationRule, incident *models.Incident, age time.Duration) bool {
	switch rule.Kind {
	case RuleCriticalSeverity:
		return incident.Severity == models.SeverityCritical
	case RuleHighSeverity:
		return incident.Severity == models.SeverityHigh
	case RuleFailedAutomation:
		return !incident.AutomatedResolution && incident.Status == models.IncidentOpen
	case RuleLongRunning:
		return age > longRunningAge
	}
	return false
}

// EscalateIncident flips the incident's escalated flag (at most once)
// and notifies every configured channel. The escalation succeeds when
// at least one channel notification goes through. Re-escalating an
// already escalated incident is a no-op failure.
func (m *EscalationManager) EscalateIncident(ctx context.Context, incident *models.Incident, reason string) *EscalationResult {
	now := m.now().UTC()
	result := &EscalationResult{
		IncidentID:  incident.ID,
		EscalatedAt: now,
		Reason:      reason,
	}

	if !incident.MarkEscalated(reason, now) {
		m.logger.Warn("Incident is already escalated", "incident_id", incident.ID)
		return result
	}

	m.logger.Warn("Escalating incident", "incident_id", incident.ID, "severity", incident.Severity, "reason", reason)

	delivered := 0
	for _, channel := range m.channels {
		record := NotificationRecord{Channel: channel, SentAt: m.now().UTC()}
		if err := m.notifier.Notify(ctx, channel, incident, reason); err != nil {
			record.Error = err.Error()
			metrics.NotificationsSent.WithLabelValues(channel, "false").Inc()
			m.logger.Error("Escalation notification failed", "channel", channel, "incident_id", incident.ID, "error", err)
		} else {
			record.Success = true
			delivered++
			metrics.NotificationsSent.WithLabelValues(channel, "true").Inc()
		}
		result.Notifications = append(result.Notifications, record)
	}

	result.Success = delivered > 0
	metrics.IncidentsEscalated.WithLabelValues(m.agentID, reason).Inc()
	return result
}
