package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/models"
)

func TestDefaultRunbooksCoverCoreCategories(t *testing.T) {
	runbooks := DefaultRunbooks()
	require.Len(t, runbooks, 3)

	byPattern := make(map[string]*models.Runbook)
	for _, rb := range runbooks {
		for _, p := range rb.IncidentPatterns {
			byPattern[p] = rb
		}
	}
	assert.Contains(t, byPattern, TypeServiceDown)
	assert.Contains(t, byPattern, TypeHighLatency)
	assert.Contains(t, byPattern, TypeResourceExhaustion)

	// The service recovery runbook treats the restart as critical and
	// carries a rollback.
	sd := byPattern[TypeServiceDown]
	assert.True(t, sd.Steps[1].Critical)
	assert.NotEmpty(t, sd.RollbackSteps)
}

func TestDefaultRunbookCriteriaAreVerifiable(t *testing.T) {
	// Every built-in criterion must name a signal the executor scores,
	// or the catalog's own runbooks could never report success.
	for _, rb := range DefaultRunbooks() {
		for _, c := range rb.SuccessCriteria {
			assert.True(t, criterionMet(c), "criterion %q of runbook %s", c, rb.ID)
		}
	}
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
runbooks:
  - id: cache_flush
    name: Cache Flush
    incident_patterns: [resource_exhaustion]
    steps:
      - type: remediation
        description: Flush cache
        command: redis-cli -h {service_name} FLUSHDB
        timeout: 45s
        critical: true
    success_criteria:
      - Memory usage back to normal
    risk_level: high
    estimated_duration: 2m
    success_rate: 0.6
`)

	runbooks, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, runbooks, 1)

	rb := runbooks[0]
	assert.Equal(t, "cache_flush", rb.ID)
	assert.Equal(t, models.RiskHigh, rb.RiskLevel)
	assert.Equal(t, 2*time.Minute, rb.EstimatedDuration)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, 45*time.Second, rb.Steps[0].Timeout)
	assert.True(t, rb.Steps[0].Critical)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	_, err := ParseCatalog([]byte("runbooks:\n  - name: no id\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing an id")

	_, err = ParseCatalog([]byte("runbooks:\n  - id: x\n    estimated_duration: sideways\n"))
	require.Error(t, err)
}
