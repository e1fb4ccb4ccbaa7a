// Self-monitoring metrics for the agents service.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Agent runtime metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_events_processed_total",
			Help: "Total number of system events processed by agents",
		},
		[]string{"agent_id", "event_type"},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_actions_executed_total",
			Help: "Total number of agent actions executed",
		},
		[]string{"agent_id", "action_type", "success"},
	)

	ActionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsagents_action_execution_duration_seconds",
			Help:    "Agent action execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"agent_id", "action_type"},
	)

	AgentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_agent_errors_total",
			Help: "Total number of errors recorded per agent",
		},
		[]string{"agent_id"},
	)

	RunningAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsagents_agents_running",
			Help: "Number of agents currently running",
		},
	)

	// Incident pipeline metrics
	AlertsCorrelated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_alerts_correlated_total",
			Help: "Total number of alerts consumed by the correlator",
		},
		[]string{"agent_id"},
	)

	IncidentsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_incidents_detected_total",
			Help: "Total number of incidents produced by correlation",
		},
		[]string{"agent_id", "severity"},
	)

	IncidentsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_incidents_escalated_total",
			Help: "Total number of incidents escalated to humans",
		},
		[]string{"agent_id", "rule"},
	)

	RunbookExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_runbook_executions_total",
			Help: "Total number of runbook executions",
		},
		[]string{"runbook_id", "success", "rollback"},
	)

	// External integration metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_notifications_sent_total",
			Help: "Total number of escalation notifications sent",
		},
		[]string{"channel", "success"},
	)

	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsagents_config_reloads_total",
			Help: "Total number of agent configuration reloads",
		},
		[]string{"agent_id", "success"},
	)
)
