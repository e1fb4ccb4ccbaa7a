package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/metrics"
	"github.com/platformbuilds/opsagents/internal/models"
)

const (
	defaultCorrelationInterval   = time.Minute
	escalationSweepInterval      = time.Minute
	defaultMaxResolutionAttempts = 3
)

// ResponseAgent is the incident response behavior: it buffers incoming
// alerts, periodically correlates them into incidents, drives runbook
// remediation and escalates incidents that automation cannot resolve.
type ResponseAgent struct {
	agentID string
	bus     agent.EventBus
	logger  logging.Logger

	correlator *AlertCorrelator
	classifier Classifier
	executor   *RunbookExecutor
	escalation *EscalationManager
	cooldowns  *CooldownTracker

	mu                    sync.Mutex
	cfg                   *models.AgentConfig
	alertBuffer           []*models.Alert
	activeIncidents       map[string]*models.Incident
	correlationInterval   time.Duration
	autoResolution        bool
	escalationEnabled     bool
	maxResolutionAttempts int

	wg sync.WaitGroup
}

// ResponseAgentDeps are the optional collaborators of a response
// agent; nil fields fall back to built-in defaults.
type ResponseAgentDeps struct {
	Grouper  SimilarityGrouper
	Runner   CommandRunner
	Notifier Notifier
}

// NewResponseAgent builds a response agent with explicit collaborators.
func NewResponseAgent(agentID string, deps agent.Dependencies, extras ResponseAgentDeps) *ResponseAgent {
	return &ResponseAgent{
		agentID:               agentID,
		bus:                   deps.Bus,
		logger:                logging.FromCoreLogger(deps.Logger),
		correlator:            NewAlertCorrelator(0, extras.Grouper, deps.Logger),
		classifier:            NewKeywordClassifier(),
		executor:              NewRunbookExecutor(extras.Runner, deps.Logger),
		escalation:            NewEscalationManager(agentID, nil, nil, extras.Notifier, deps.Logger),
		cooldowns:             NewCooldownTracker(0),
		activeIncidents:       make(map[string]*models.Incident),
		correlationInterval:   defaultCorrelationInterval,
		autoResolution:        true,
		escalationEnabled:     true,
		maxResolutionAttempts: defaultMaxResolutionAttempts,
	}
}

// NewResponseBehavior is the factory constructor for the
// incident_response agent type.
func NewResponseBehavior(agentID string, deps agent.Dependencies) agent.Behavior {
	return NewResponseAgent(agentID, deps, ResponseAgentDeps{})
}

// InitializeSpecific applies the thresholds and loads any configured
// external runbook catalog.
func (a *ResponseAgent) InitializeSpecific(ctx context.Context, cfg *models.AgentConfig) error {
	a.applyConfig(cfg)

	if integ := cfg.IntegrationConfig("runbooks"); integ != nil {
		if path, ok := integ["catalog_path"].(string); ok && path != "" {
			if err := a.executor.LoadCatalog(path); err != nil {
				return fmt.Errorf("load runbook catalog: %w", err)
			}
		}
	}

	a.logger.Info("Incident response agent initialized", "agent_id", a.agentID,
		"correlation_interval", a.correlationInterval, "auto_resolution", a.autoResolution)
	return nil
}

// applyConfig reads the behavior thresholds. Reapplying the same
// configuration is a no-op.
func (a *ResponseAgent) applyConfig(cfg *models.AgentConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	interval := time.Duration(cfg.Threshold("correlation_interval", defaultCorrelationInterval.Seconds())) * time.Second
	if interval <= 0 {
		interval = defaultCorrelationInterval
	}
	a.correlationInterval = interval
	a.autoResolution = cfg.ThresholdBool("auto_resolution_enabled", true)
	a.escalationEnabled = cfg.ThresholdBool("escalation_enabled", true)
	a.maxResolutionAttempts = int(cfg.Threshold("max_resolution_attempts", defaultMaxResolutionAttempts))
	if a.maxResolutionAttempts < 1 {
		a.maxResolutionAttempts = defaultMaxResolutionAttempts
	}
}

// StartSpecific launches the correlation and escalation loops tied to
// the runtime's loop context.
func (a *ResponseAgent) StartSpecific(ctx context.Context) error {
	a.mu.Lock()
	interval := a.correlationInterval
	escalate := a.escalationEnabled
	a.mu.Unlock()

	a.wg.Add(1)
	go a.correlationLoop(ctx, interval)

	if escalate {
		a.wg.Add(1)
		go a.escalationLoop(ctx)
	}

	a.logger.Info("Incident response agent started", "agent_id", a.agentID)
	return nil
}

// StopSpecific waits for the background loops; cancellation arrives
// through the start context.
func (a *ResponseAgent) StopSpecific(ctx context.Context) error {
	a.wg.Wait()
	a.logger.Info("Incident response agent stopped", "agent_id", a.agentID)
	return nil
}

// SubscribedEventTypes lists the bus subscriptions of this agent type.
func (a *ResponseAgent) SubscribedEventTypes() []models.EventType {
	return []models.EventType{
		models.EventIncidentDetected,
		models.EventResourceAnomaly,
		models.EventInfrastructureDrift,
	}
}

// ReloadConfigSpecific reapplies the thresholds. Loop intervals take
// effect on the next start.
func (a *ResponseAgent) ReloadConfigSpecific(_ context.Context, _, newCfg *models.AgentConfig) error {
	a.applyConfig(newCfg)
	a.logger.Info("Incident response agent config reloaded", "agent_id", a.agentID)
	return nil
}

func (a *ResponseAgent) correlationLoop(ctx context.Context, interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.FlushAlerts(ctx)
		}
	}
}

func (a *ResponseAgent) escalationLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(escalationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SweepEscalations(ctx)
		}
	}
}

// HandleEvent converts anomaly and drift events into buffered alerts
// and turns incident-detected events into remediation actions.
func (a *ResponseAgent) HandleEvent(ctx context.Context, event *models.SystemEvent) (*models.AgentAction, error) {
	switch event.Type {
	case models.EventIncidentDetected:
		return a.handleIncidentDetected(ctx, event)
	case models.EventResourceAnomaly, models.EventInfrastructureDrift:
		a.BufferAlert(alertFromEvent(event))
		return nil, nil
	default:
		return nil, nil
	}
}

// BufferAlert queues an alert for the next correlation cycle.
func (a *ResponseAgent) BufferAlert(alert *models.Alert) {
	a.mu.Lock()
	a.alertBuffer = append(a.alertBuffer, alert)
	n := len(a.alertBuffer)
	a.mu.Unlock()
	a.logger.Debug("Buffered alert", "alert_id", alert.ID, "buffer_size", n)
}

// alertFromEvent lifts a bus event into an alert for correlation.
func alertFromEvent(event *models.SystemEvent) *models.Alert {
	title := fmt.Sprintf("%s from %s", event.Type, event.Source)
	description := ""
	if v, ok := event.Data["description"].(string); ok {
		description = v
	}
	labels := make(map[string]string)
	if v, ok := event.Data["resource"].(string); ok {
		labels["resource"] = v
	}
	if v, ok := event.Data["service"].(string); ok {
		labels["service"] = v
	}
	return &models.Alert{
		ID:          event.ID,
		Source:      event.Source,
		Severity:    event.Severity,
		Title:       title,
		Description: description,
		Timestamp:   event.Timestamp,
		Labels:      labels,
		RawData:     event.Data,
	}
}

// FlushAlerts drains the alert buffer, correlates it into incidents,
// classifies each incident, registers it as active and re-emits an
// incident-detected event for remediation.
func (a *ResponseAgent) FlushAlerts(ctx context.Context) []*models.Incident {
	a.mu.Lock()
	alerts := a.alertBuffer
	a.alertBuffer = nil
	a.mu.Unlock()

	if len(alerts) == 0 {
		return nil
	}

	incidents := a.correlator.CorrelateAlerts(ctx, alerts)
	metrics.AlertsCorrelated.WithLabelValues(a.agentID).Add(float64(len(alerts)))

	for _, incident := range incidents {
		incidentType, confidence, err := a.classifier.Classify(ctx, incident)
		if err != nil {
			a.logger.Error("Incident classification failed", "incident_id", incident.ID, "error", err)
			incidentType, confidence = UnknownIncidentType, 0.5
		}
		if incident.Metadata == nil {
			incident.Metadata = make(map[string]interface{})
		}
		incident.Metadata["incident_type"] = incidentType
		incident.Metadata["classification_confidence"] = confidence

		a.mu.Lock()
		a.activeIncidents[incident.ID] = incident
		a.mu.Unlock()

		metrics.IncidentsDetected.WithLabelValues(a.agentID, incident.Severity).Inc()
		a.logger.Info("Detected incident", "incident_id", incident.ID, "type", incidentType,
			"severity", incident.Severity, "alerts", len(incident.Alerts))

		a.publishIncidentDetected(ctx, incident, incidentType)
	}

	return incidents
}

func (a *ResponseAgent) publishIncidentDetected(ctx context.Context, incident *models.Incident, incidentType string) {
	if a.bus == nil {
		return
	}
	event := &models.SystemEvent{
		ID:       uuid.NewString(),
		Type:     models.EventIncidentDetected,
		Source:   a.agentID,
		Severity: incident.Severity,
		Data: map[string]interface{}{
			"incident_id":   incident.ID,
			"incident_type": incidentType,
			"title":         incident.Title,
			"alert_count":   len(incident.Alerts),
		},
		Timestamp:     time.Now().UTC(),
		CorrelationID: incident.ID,
	}
	if err := a.bus.PublishEvent(ctx, event); err != nil {
		a.logger.Error("Failed to publish incident event", "incident_id", incident.ID, "error", err)
	}
}

// handleIncidentDetected recommends a remediation action for an active
// incident: auto-resolution must be enabled, an applicable runbook
// must exist and the incident's primary resource must be out of
// cooldown.
func (a *ResponseAgent) handleIncidentDetected(_ context.Context, event *models.SystemEvent) (*models.AgentAction, error) {
	incidentID, _ := event.Data["incident_id"].(string)
	incidentType, _ := event.Data["incident_type"].(string)
	if incidentID == "" {
		return nil, fmt.Errorf("%w: incident event %s has no incident_id", agent.ErrNotFound, event.ID)
	}

	a.mu.Lock()
	incident, ok := a.activeIncidents[incidentID]
	autoResolution := a.autoResolution
	a.mu.Unlock()
	if !ok {
		a.logger.Warn("Incident event for unknown incident", "incident_id", incidentID)
		return nil, nil
	}
	if !autoResolution {
		a.logger.Info("Auto-resolution disabled, skipping remediation", "incident_id", incidentID)
		return nil, nil
	}

	runbooks := a.executor.FindApplicableRunbooks(incidentType)
	if len(runbooks) == 0 {
		a.logger.Info("No applicable runbook for incident", "incident_id", incidentID, "type", incidentType)
		return nil, nil
	}
	runbook := runbooks[0]

	resource := primaryResource(incident)
	if resource != "" && !a.cooldowns.Allow(resource) {
		a.logger.Info("Remediation suppressed by cooldown", "incident_id", incidentID, "resource", resource)
		return nil, nil
	}

	action := &models.AgentAction{
		ID:              uuid.NewString(),
		AgentID:         a.agentID,
		Type:            models.ActionIncidentResolve,
		Description:     fmt.Sprintf("Execute runbook %s for incident: %s", runbook.Name, incident.Title),
		TargetResources: incident.AffectedResources,
		RiskLevel:       resolutionRisk(incident, runbook),
		EstimatedImpact: fmt.Sprintf("Automated resolution of %s incident", incidentType),
		Status:          models.ActionPending,
		Metadata: map[string]interface{}{
			"incident_id":   incident.ID,
			"incident_type": incidentType,
			"runbook_id":    runbook.ID,
			"event_id":      event.ID,
		},
	}

	if resource != "" {
		a.cooldowns.RecordDecision(resource)
	}

	a.logger.Info("Recommended remediation", "incident_id", incidentID, "runbook_id", runbook.ID, "risk", action.RiskLevel)
	return action, nil
}

// resolutionRisk maps the incident and runbook onto an action risk
// level: critical incidents are high risk; high-severity incidents or
// high-risk runbooks are medium; everything else is low.
func resolutionRisk(incident *models.Incident, rb *models.Runbook) models.RiskLevel {
	switch {
	case incident.Severity == models.SeverityCritical:
		return models.RiskHigh
	case incident.Severity == models.SeverityHigh || rb.RiskLevel == models.RiskHigh:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// primaryResource is the first affected resource of an incident, used
// as the cooldown key.
func primaryResource(incident *models.Incident) string {
	if len(incident.AffectedResources) == 0 {
		return ""
	}
	return incident.AffectedResources[0]
}

// ExecuteAction performs incident resolution actions; any other type
// fails with an unsupported-action result.
func (a *ResponseAgent) ExecuteAction(ctx context.Context, action *models.AgentAction) (*models.ActionResult, error) {
	switch action.Type {
	case models.ActionIncidentResolve:
		return a.executeResolution(ctx, action)
	default:
		return &models.ActionResult{
			Success: false,
			Message: "unsupported action type",
			Error:   fmt.Sprintf("%v: %s", agent.ErrUnsupportedAction, action.Type),
		}, nil
	}
}

// executeResolution runs the selected runbook against the incident.
// Success resolves and retires the incident; failure counts a
// resolution attempt and force-escalates once the attempt ceiling is
// reached.
func (a *ResponseAgent) executeResolution(ctx context.Context, action *models.AgentAction) (*models.ActionResult, error) {
	incidentID, _ := action.Metadata["incident_id"].(string)
	runbookID, _ := action.Metadata["runbook_id"].(string)

	a.mu.Lock()
	incident, ok := a.activeIncidents[incidentID]
	maxAttempts := a.maxResolutionAttempts
	escalationEnabled := a.escalationEnabled
	a.mu.Unlock()
	if !ok {
		return &models.ActionResult{
			Success: false,
			Message: "incident is no longer active",
			Error:   fmt.Sprintf("%v: incident %s", agent.ErrNotFound, incidentID),
		}, nil
	}

	runbook, ok := a.executor.Runbook(runbookID)
	if !ok {
		return &models.ActionResult{
			Success: false,
			Message: "runbook not found",
			Error:   fmt.Sprintf("%v: runbook %s", agent.ErrNotFound, runbookID),
		}, nil
	}

	execution := a.executor.ExecuteRunbook(ctx, runbook, incident, a.executionContext(incident))

	if execution.Success {
		steps := make([]string, 0, len(execution.StepsExecuted))
		for _, sr := range execution.StepsExecuted {
			steps = append(steps, sr.Description)
		}
		incident.Resolve(time.Now().UTC(), true, steps)

		a.mu.Lock()
		delete(a.activeIncidents, incidentID)
		a.mu.Unlock()

		a.logger.Info("Incident resolved automatically", "incident_id", incidentID, "runbook_id", runbookID)
		return &models.ActionResult{
			Success: true,
			Message: fmt.Sprintf("incident %s resolved by runbook %s", incidentID, runbook.Name),
			Data: map[string]interface{}{
				"execution_id":   execution.ExecutionID,
				"steps_executed": len(execution.StepsExecuted),
			},
		}, nil
	}

	failure := execution.Error
	if failure == "" {
		failure = "success criteria not met"
	}

	attempts := metadataInt(incident.Metadata, "resolution_attempts") + 1
	a.mu.Lock()
	if incident.Metadata == nil {
		incident.Metadata = make(map[string]interface{})
	}
	incident.Metadata["resolution_attempts"] = attempts
	incident.Metadata["last_resolution_error"] = failure
	a.mu.Unlock()

	a.logger.Warn("Runbook execution failed", "incident_id", incidentID, "runbook_id", runbookID,
		"attempts", attempts, "error", failure)

	if attempts >= maxAttempts && escalationEnabled && !incident.Escalated {
		a.escalation.EscalateIncident(ctx, incident, "automation_failed")
	}

	return &models.ActionResult{
		Success: false,
		Message: fmt.Sprintf("runbook %s failed for incident %s", runbook.Name, incidentID),
		Error:   failure,
		Data: map[string]interface{}{
			"execution_id":        execution.ExecutionID,
			"resolution_attempts": attempts,
			"rollback_performed":  execution.RollbackPerformed,
		},
	}, nil
}

// executionContext builds the {key} substitution map for runbook
// commands from the incident's resources.
func (a *ResponseAgent) executionContext(incident *models.Incident) map[string]string {
	execContext := map[string]string{
		"incident_id": incident.ID,
	}
	if resource := primaryResource(incident); resource != "" {
		execContext["service_name"] = resource
		execContext["pod_name"] = resource
	}
	return execContext
}

// SweepEscalations evaluates the escalation rules against every
// active, not yet escalated incident.
func (a *ResponseAgent) SweepEscalations(ctx context.Context) {
	a.mu.Lock()
	incidents := make([]*models.Incident, 0, len(a.activeIncidents))
	for _, inc := range a.activeIncidents {
		if !inc.Escalated {
			incidents = append(incidents, inc)
		}
	}
	a.mu.Unlock()

	for _, incident := range incidents {
		if should, reason := a.escalation.ShouldEscalate(incident); should {
			a.escalation.EscalateIncident(ctx, incident, reason)
		}
	}
}

// ActiveIncidents returns a snapshot of the incidents this agent owns.
func (a *ResponseAgent) ActiveIncidents() map[string]*models.Incident {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*models.Incident, len(a.activeIncidents))
	for id, inc := range a.activeIncidents {
		out[id] = inc
	}
	return out
}

// PerformHealthCheck reports the agent's internal queue depths.
func (a *ResponseAgent) PerformHealthCheck(_ context.Context) error {
	a.mu.Lock()
	buffered := len(a.alertBuffer)
	active := len(a.activeIncidents)
	a.mu.Unlock()
	a.logger.Debug("Incident response health", "agent_id", a.agentID, "buffered_alerts", buffered, "active_incidents", active)
	return nil
}

func metadataInt(meta map[string]interface{}, key string) int {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
