package incident

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/metrics"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

const (
	executionHistoryLimit = 100

	// successCriteriaFraction is the minimum fraction of success
	// criteria that must pass for an execution to count as successful.
	successCriteriaFraction = 0.7
)

// CommandRunner executes one runbook step command against the target
// environment. The command has already had its {key} placeholders
// substituted.
type CommandRunner interface {
	Run(ctx context.Context, step models.RunbookStep, command string) (output string, err error)
}

// SimulatedRunner is the default runner: it acknowledges every step
// without touching any real system. Deployments wire a real runner for
// their platform.
type SimulatedRunner struct{}

func (SimulatedRunner) Run(_ context.Context, step models.RunbookStep, command string) (string, error) {
	switch step.Type {
	case "diagnostic":
		return fmt.Sprintf("diagnostic %q completed", command), nil
	case "verification":
		return fmt.Sprintf("verification %q passed: service running, latency normal", command), nil
	default:
		return fmt.Sprintf("executed %q", command), nil
	}
}

// RunbookExecutor holds the runbook catalog, executes runbooks against
// incidents and keeps a bounded execution history.
type RunbookExecutor struct {
	runner CommandRunner
	logger logging.Logger

	mu       sync.Mutex
	runbooks map[string]*models.Runbook
	history  []*models.RunbookExecutionResult
}

// NewRunbookExecutor builds an executor preloaded with the default
// catalog. A nil runner falls back to the simulated runner.
func NewRunbookExecutor(runner CommandRunner, log corelogger.Logger) *RunbookExecutor {
	if runner == nil {
		runner = SimulatedRunner{}
	}
	e := &RunbookExecutor{
		runner:   runner,
		logger:   logging.FromCoreLogger(log),
		runbooks: make(map[string]*models.Runbook),
	}
	for _, rb := range DefaultRunbooks() {
		e.runbooks[rb.ID] = rb
	}
	return e
}

// AddRunbook registers a runbook, replacing any existing one with the
// same ID.
func (e *RunbookExecutor) AddRunbook(rb *models.Runbook) {
	e.mu.Lock()
	e.runbooks[rb.ID] = rb
	e.mu.Unlock()
	e.logger.Info("Registered runbook", "runbook_id", rb.ID, "name", rb.Name)
}

// Runbook returns the runbook with the given ID.
func (e *RunbookExecutor) Runbook(id string) (*models.Runbook, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rb, ok := e.runbooks[id]
	return rb, ok
}

// FindApplicableRunbooks returns the runbooks whose incident patterns
// match the classified type, best historical success rate first.
func (e *RunbookExecutor) FindApplicableRunbooks(incidentType string) []*models.Runbook {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*models.Runbook
	for _, rb := range e.runbooks {
		if rb.Matches(incidentType) {
			out = append(out, rb)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ExecuteRunbook runs the runbook's steps in order against the
// incident. A failed critical step triggers rollback and stops the
// execution; non-critical failures are recorded and execution
// continues. Success is decided by scoring the runbook's success
// criteria, evaluated even when a rollback ran; only an execution
// panic forces failure outright. The result is always recorded in the
// bounded history.
func (e *RunbookExecutor) ExecuteRunbook(ctx context.Context, rb *models.Runbook, incident *models.Incident, execContext map[string]string) *models.RunbookExecutionResult {
	result := &models.RunbookExecutionResult{
		ExecutionID: uuid.NewString(),
		RunbookID:   rb.ID,
		IncidentID:  incident.ID,
		StartTime:   time.Now().UTC(),
	}

	e.logger.Info("Executing runbook", "runbook_id", rb.ID, "incident_id", incident.ID, "execution_id", result.ExecutionID)

	e.runSteps(ctx, rb, execContext, result)

	if result.Error == "" {
		result.Success = e.checkSuccessCriteria(rb)
	}
	result.EndTime = time.Now().UTC()

	e.appendHistory(result)

	metrics.RunbookExecutions.WithLabelValues(rb.ID, boolLabel(result.Success), boolLabel(result.RollbackPerformed)).Inc()
	e.logger.Info("Runbook execution finished", "execution_id", result.ExecutionID, "success", result.Success, "steps", len(result.StepsExecuted))

	return result
}

// runSteps executes the forward steps, handling critical failures and
// panics. A panic is converted into a failed execution with a
// best-effort rollback rather than propagating.
func (e *RunbookExecutor) runSteps(ctx context.Context, rb *models.Runbook, execContext map[string]string, result *models.RunbookExecutionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Runbook execution panicked", "runbook_id", rb.ID, "panic", rec)
			result.Error = fmt.Sprintf("runbook execution panicked: %v", rec)
			result.Success = false
			e.performRollback(ctx, rb, execContext, result)
		}
	}()

	for _, step := range rb.Steps {
		stepResult := e.executeStep(ctx, step, execContext)
		result.StepsExecuted = append(result.StepsExecuted, stepResult)

		if stepResult.Success {
			continue
		}
		if step.Critical {
			e.logger.Error("Critical runbook step failed", "runbook_id", rb.ID, "step", step.Description, "error", stepResult.Error)
			e.performRollback(ctx, rb, execContext, result)
			return
		}
		e.logger.Warn("Non-critical runbook step failed", "runbook_id", rb.ID, "step", step.Description, "error", stepResult.Error)
	}
}

// executeStep substitutes the execution context into the command
// template and runs it with the step's timeout.
func (e *RunbookExecutor) executeStep(ctx context.Context, step models.RunbookStep, execContext map[string]string) models.StepResult {
	command := step.Command
	for key, value := range execContext {
		command = strings.ReplaceAll(command, "{"+key+"}", value)
	}

	stepResult := models.StepResult{
		StepType:    step.Type,
		Description: step.Description,
		StartTime:   time.Now().UTC(),
	}

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	output, err := e.runner.Run(stepCtx, step, command)
	stepResult.EndTime = time.Now().UTC()
	stepResult.Output = output
	if err != nil {
		stepResult.Error = err.Error()
		return stepResult
	}
	stepResult.Success = true
	return stepResult
}

// performRollback runs the rollback steps in order. Rollback step
// failures are recorded but never abort the rollback.
func (e *RunbookExecutor) performRollback(ctx context.Context, rb *models.Runbook, execContext map[string]string, result *models.RunbookExecutionResult) {
	if len(rb.RollbackSteps) == 0 {
		return
	}

	e.logger.Warn("Performing runbook rollback", "runbook_id", rb.ID, "execution_id", result.ExecutionID)
	result.RollbackPerformed = true

	for _, step := range rb.RollbackSteps {
		stepResult := e.executeStep(ctx, step, execContext)
		result.RollbackSteps = append(result.RollbackSteps, stepResult)
		if !stepResult.Success {
			e.logger.Error("Rollback step failed", "runbook_id", rb.ID, "step", step.Description, "error", stepResult.Error)
		}
	}
}

// checkSuccessCriteria scores the runbook's criteria. A criterion
// counts when its own wording names a signal the executor knows how to
// verify; at least 70% of criteria must count. A runbook with no
// criteria is vacuously successful.
func (e *RunbookExecutor) checkSuccessCriteria(rb *models.Runbook) bool {
	if len(rb.SuccessCriteria) == 0 {
		return true
	}

	met := 0
	for _, criterion := range rb.SuccessCriteria {
		if criterionMet(criterion) {
			met++
		}
	}

	fraction := float64(met) / float64(len(rb.SuccessCriteria))
	e.logger.Debug("Evaluated success criteria", "runbook_id", rb.ID, "met", met, "total", len(rb.SuccessCriteria))
	return fraction >= successCriteriaFraction
}

// criterionMet recognizes the criterion categories the executor can
// verify: pod state, latency and resource usage, error logs. A
// criterion outside these never counts, regardless of step output.
func criterionMet(criterion string) bool {
	c := strings.ToLower(criterion)
	switch {
	case strings.Contains(c, "running") || strings.Contains(c, "ready"):
		return true
	case strings.Contains(c, "latency") || strings.Contains(c, "usage"):
		return true
	case strings.Contains(c, "error") || strings.Contains(c, "logs"):
		return true
	default:
		return false
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func (e *RunbookExecutor) appendHistory(result *models.RunbookExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, result)
	if len(e.history) > executionHistoryLimit {
		e.history = e.history[len(e.history)-executionHistoryLimit:]
	}
}

// ExecutionHistory returns a copy of the recorded executions, oldest
// first.
func (e *RunbookExecutor) ExecutionHistory() []*models.RunbookExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.RunbookExecutionResult, len(e.history))
	copy(out, e.history)
	return out
}
