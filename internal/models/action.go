package models

import (
	"fmt"
	"time"
)

// ActionType identifies what kind of remediation an action performs.
type ActionType string

const (
	ActionIncidentResolve ActionType = "incident_resolve"
	ActionScale           ActionType = "scale"
	ActionRestart         ActionType = "restart"
	ActionResourceCleanup ActionType = "resource_cleanup"
)

// RiskLevel classifies the blast radius of an automated action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionStatus is a strict state machine:
// PENDING -> EXECUTING -> {COMPLETED | FAILED}. No other transition is
// valid; in particular FAILED never becomes COMPLETED.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// status transition.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionPending:
		return next == ActionExecuting
	case ActionExecuting:
		return next == ActionCompleted || next == ActionFailed
	}
	return false
}

// ActionResult captures the outcome of executing an AgentAction.
type ActionResult struct {
	Success       bool                   `json:"success"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
}

// AgentAction is a unit of remediation work owned by a single agent.
type AgentAction struct {
	ID              string                 `json:"id"`
	AgentID         string                 `json:"agent_id"`
	Type            ActionType             `json:"type"`
	Description     string                 `json:"description"`
	TargetResources []string               `json:"target_resources"`
	RiskLevel       RiskLevel              `json:"risk_level"`
	EstimatedImpact string                 `json:"estimated_impact,omitempty"`
	Status          ActionStatus           `json:"status"`
	ExecutedAt      *time.Time             `json:"executed_at,omitempty"`
	Result          *ActionResult          `json:"result,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Transition moves the action to the next status, rejecting any move
// the state machine does not allow.
func (a *AgentAction) Transition(next ActionStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid action status transition %s -> %s for action %s", a.Status, next, a.ID)
	}
	a.Status = next
	return nil
}
