package models

import "time"

// RunbookStep is one ordered step of a remediation procedure. The
// command is a template with {key} placeholders substituted from the
// execution context; its interpretation belongs to the remediation
// command collaborator, not this core.
type RunbookStep struct {
	Type        string        `json:"type" yaml:"type"`
	Description string        `json:"description" yaml:"description"`
	Command     string        `json:"command" yaml:"command"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	Critical    bool          `json:"critical,omitempty" yaml:"critical,omitempty"`
}

// Runbook is a named, ordered remediation procedure with rollback and
// success criteria.
type Runbook struct {
	ID                string        `json:"id" yaml:"id"`
	Name              string        `json:"name" yaml:"name"`
	Description       string        `json:"description" yaml:"description"`
	IncidentPatterns  []string      `json:"incident_patterns" yaml:"incident_patterns"`
	Steps             []RunbookStep `json:"steps" yaml:"steps"`
	SuccessCriteria   []string      `json:"success_criteria" yaml:"success_criteria"`
	RollbackSteps     []RunbookStep `json:"rollback_steps" yaml:"rollback_steps"`
	RiskLevel         RiskLevel     `json:"risk_level" yaml:"risk_level"`
	EstimatedDuration time.Duration `json:"estimated_duration" yaml:"estimated_duration"`
	SuccessRate       float64       `json:"success_rate" yaml:"success_rate"`
}

// Matches reports whether the runbook applies to the given incident
// type.
func (r *Runbook) Matches(incidentType string) bool {
	for _, p := range r.IncidentPatterns {
		if p == incidentType {
			return true
		}
	}
	return false
}

// StepResult is the outcome of a single runbook (or rollback) step.
type StepResult struct {
	StepType    string    `json:"step_type"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Success     bool      `json:"success"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// RunbookExecutionResult records one complete runbook invocation.
type RunbookExecutionResult struct {
	ExecutionID       string       `json:"execution_id"`
	RunbookID         string       `json:"runbook_id"`
	IncidentID        string       `json:"incident_id"`
	StartTime         time.Time    `json:"start_time"`
	EndTime           time.Time    `json:"end_time"`
	Success           bool         `json:"success"`
	StepsExecuted     []StepResult `json:"steps_executed"`
	RollbackSteps     []StepResult `json:"rollback_steps,omitempty"`
	Error             string       `json:"error,omitempty"`
	RollbackPerformed bool         `json:"rollback_performed"`
}
