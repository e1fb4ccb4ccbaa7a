package models

import "time"

// AgentStatus summarizes the operational state of an agent instance.
type AgentStatus string

const (
	StatusHealthy   AgentStatus = "healthy"
	StatusDegraded  AgentStatus = "degraded"
	StatusUnhealthy AgentStatus = "unhealthy"
	StatusOffline   AgentStatus = "offline"
)

// HealthStatus is a point-in-time health snapshot of an agent.
// ErrorCount is monotonically non-decreasing for the life of a runtime
// instance; it resets only when the agent is re-created.
type HealthStatus struct {
	Status        AgentStatus            `json:"status"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
	Uptime        time.Duration          `json:"uptime"`
	ErrorCount    int                    `json:"error_count"`
	LastError     string                 `json:"last_error,omitempty"`
	Metrics       map[string]interface{} `json:"metrics,omitempty"`
}
