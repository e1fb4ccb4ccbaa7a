package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

// scriptedRunner fails the commands listed in failOn and records every
// substituted command it receives.
type scriptedRunner struct {
	failOn   map[string]bool
	panicOn  string
	outputs  map[string]string
	commands []string
}

func (r *scriptedRunner) Run(_ context.Context, step models.RunbookStep, command string) (string, error) {
	r.commands = append(r.commands, command)
	if command == r.panicOn {
		panic("runner exploded")
	}
	if r.failOn[command] {
		return "", errors.New("command failed")
	}
	if out, ok := r.outputs[command]; ok {
		return out, nil
	}
	return "ok", nil
}

func testRunbook() *models.Runbook {
	return &models.Runbook{
		ID:               "rb-test",
		Name:             "Test Runbook",
		IncidentPatterns: []string{TypeServiceDown},
		Steps: []models.RunbookStep{
			{Type: "diagnostic", Description: "inspect", Command: "inspect {service_name}", Timeout: 30 * time.Second},
			{Type: "remediation", Description: "restart", Command: "restart {service_name}", Timeout: time.Minute, Critical: true},
			{Type: "verification", Description: "verify", Command: "verify {service_name}", Timeout: time.Minute},
		},
		RollbackSteps: []models.RunbookStep{
			{Type: "rollback", Description: "undo restart", Command: "undo {service_name}", Timeout: time.Minute},
		},
	}
}

func testIncident() *models.Incident {
	return &models.Incident{ID: "inc-1", Status: models.IncidentOpen, Severity: models.SeverityHigh}
}

func TestExecuteRunbookSubstitutesContext(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), testRunbook(), testIncident(),
		map[string]string{"service_name": "checkout"})

	require.True(t, result.Success)
	assert.Equal(t, []string{"inspect checkout", "restart checkout", "verify checkout"}, runner.commands)
	assert.Len(t, result.StepsExecuted, 3)
	assert.False(t, result.RollbackPerformed)
}

func TestCriticalStepFailureTriggersRollback(t *testing.T) {
	rb := testRunbook()
	rb.SuccessCriteria = []string{"Operator dashboard is green"}
	runner := &scriptedRunner{failOn: map[string]bool{"restart checkout": true}}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), rb, testIncident(),
		map[string]string{"service_name": "checkout"})

	require.False(t, result.Success)
	assert.True(t, result.RollbackPerformed)
	require.Len(t, result.RollbackSteps, 1)
	assert.True(t, result.RollbackSteps[0].Success)
	// Execution stopped at the critical step: the verify step never ran.
	assert.Len(t, result.StepsExecuted, 2)
	assert.Equal(t, "undo checkout", runner.commands[len(runner.commands)-1])
}

func TestCriteriaEvaluatedAfterRollback(t *testing.T) {
	rb := testRunbook()
	rb.SuccessCriteria = []string{"Service pods are running", "Latency back to normal"}
	runner := &scriptedRunner{failOn: map[string]bool{"restart checkout": true}}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), rb, testIncident(),
		map[string]string{"service_name": "checkout"})

	// A rollback does not short-circuit criteria scoring.
	assert.True(t, result.RollbackPerformed)
	assert.True(t, result.Success)
}

func TestNonCriticalFailureContinues(t *testing.T) {
	runner := &scriptedRunner{failOn: map[string]bool{"inspect checkout": true}}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), testRunbook(), testIncident(),
		map[string]string{"service_name": "checkout"})

	// The diagnostic failure is recorded but the remaining steps run.
	assert.Len(t, result.StepsExecuted, 3)
	assert.False(t, result.StepsExecuted[0].Success)
	assert.True(t, result.StepsExecuted[1].Success)
	assert.False(t, result.RollbackPerformed)
	assert.True(t, result.Success)
}

func TestPanicDuringExecutionRollsBack(t *testing.T) {
	runner := &scriptedRunner{panicOn: "restart checkout"}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), testRunbook(), testIncident(),
		map[string]string{"service_name": "checkout"})

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
	assert.True(t, result.RollbackPerformed)
}

func TestSuccessCriteriaFraction(t *testing.T) {
	e := NewRunbookExecutor(&scriptedRunner{}, logger.NewNop())

	// Two of three criteria name verifiable signals ("running",
	// "error"/"logs"); the health check names none. 2/3 = 0.667 < 0.7
	// fails even though every step succeeded.
	rb := testRunbook()
	rb.SuccessCriteria = []string{
		"Service pods are running",
		"No error entries in logs",
		"Health check returns 200",
	}
	result := e.ExecuteRunbook(context.Background(), rb, testIncident(),
		map[string]string{"service_name": "checkout"})
	assert.False(t, result.Success)

	// Rewording the health check onto a verifiable signal clears the
	// bar at 3/3.
	rb = testRunbook()
	rb.SuccessCriteria = []string{
		"Service pods are running",
		"No error entries in logs",
		"Health endpoint ready",
	}
	result = e.ExecuteRunbook(context.Background(), rb, testIncident(),
		map[string]string{"service_name": "checkout"})
	assert.True(t, result.Success)
}

func TestCriteriaScoredOnWordingNotOutput(t *testing.T) {
	rb := testRunbook()
	rb.SuccessCriteria = []string{"Health check returns 200"}

	// Step output carrying every verifiable signal does not rescue a
	// criterion that names none.
	runner := &scriptedRunner{outputs: map[string]string{
		"verify checkout": "pods running and ready, latency normal, no errors in logs",
	}}
	e := NewRunbookExecutor(runner, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), rb, testIncident(),
		map[string]string{"service_name": "checkout"})
	assert.False(t, result.Success)
}

func TestEmptySuccessCriteriaSucceeds(t *testing.T) {
	rb := testRunbook()
	rb.SuccessCriteria = nil
	e := NewRunbookExecutor(&scriptedRunner{}, logger.NewNop())

	result := e.ExecuteRunbook(context.Background(), rb, testIncident(), nil)
	assert.True(t, result.Success)
}

func TestFindApplicableRunbooksSortsBySuccessRate(t *testing.T) {
	e := NewRunbookExecutor(&scriptedRunner{}, logger.NewNop())
	e.AddRunbook(&models.Runbook{ID: "sd-better", IncidentPatterns: []string{TypeServiceDown}, SuccessRate: 0.95})

	found := e.FindApplicableRunbooks(TypeServiceDown)
	require.NotEmpty(t, found)
	assert.Equal(t, "sd-better", found[0].ID)

	assert.Empty(t, e.FindApplicableRunbooks("no_such_type"))
}

func TestExecutionHistoryBounded(t *testing.T) {
	e := NewRunbookExecutor(&scriptedRunner{}, logger.NewNop())
	rb := testRunbook()
	rb.SuccessCriteria = nil

	for i := 0; i < executionHistoryLimit+10; i++ {
		e.ExecuteRunbook(context.Background(), rb, testIncident(), nil)
	}
	assert.Len(t, e.ExecutionHistory(), executionHistoryLimit)
}
