package agent

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

func TestPerformHealthCheckStatusDerivation(t *testing.T) {
	ctx := context.Background()
	monitor := NewHealthMonitor(time.Minute, nil, logger.NewNop())

	// No checks registered: offline.
	assert.Equal(t, models.StatusOffline, monitor.PerformHealthCheck(ctx, "agent-1").Status)

	passing := func(context.Context, string) (CheckResult, error) {
		return CheckResult{Passed: true}, nil
	}
	failing := func(context.Context, string) (CheckResult, error) {
		return CheckResult{}, errors.New("probe failed")
	}

	monitor.RegisterCheck("a", passing)
	monitor.RegisterCheck("b", passing)
	assert.Equal(t, models.StatusHealthy, monitor.PerformHealthCheck(ctx, "agent-1").Status)

	// One of two failing: degraded.
	monitor.RegisterCheck("b", failing)
	status := monitor.PerformHealthCheck(ctx, "agent-1")
	assert.Equal(t, models.StatusDegraded, status.Status)
	assert.Equal(t, 1, status.ErrorCount)

	// Both failing: unhealthy.
	monitor.RegisterCheck("a", failing)
	assert.Equal(t, models.StatusUnhealthy, monitor.PerformHealthCheck(ctx, "agent-1").Status)
}

func TestPerformHealthCheckContainsPanics(t *testing.T) {
	monitor := NewHealthMonitor(time.Minute, nil, logger.NewNop())
	monitor.RegisterCheck("explosive", func(context.Context, string) (CheckResult, error) {
		panic("check exploded")
	})

	status := monitor.PerformHealthCheck(context.Background(), "agent-1")
	assert.Equal(t, models.StatusUnhealthy, status.Status)
	assert.Contains(t, status.LastError, "panicked")
}

func TestAlertOnHealthyToUnhealthy(t *testing.T) {
	ctx := context.Background()
	monitor := NewHealthMonitor(time.Minute, nil, logger.NewNop())

	var alerts []string
	monitor.RegisterAlertCallback(func(_ context.Context, agentID string, _ *models.HealthStatus, message string) {
		alerts = append(alerts, message)
	})

	healthy := func(context.Context, string) (CheckResult, error) {
		return CheckResult{Passed: true}, nil
	}
	monitor.RegisterCheck("probe", healthy)
	monitor.PerformHealthCheck(ctx, "agent-1")
	require.Empty(t, alerts)

	monitor.RegisterCheck("probe", func(context.Context, string) (CheckResult, error) {
		return CheckResult{}, errors.New("gone")
	})
	monitor.PerformHealthCheck(ctx, "agent-1")

	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "became unhealthy")
}

func TestHealthSummary(t *testing.T) {
	ctx := context.Background()
	monitor := NewHealthMonitor(time.Minute, nil, logger.NewNop())
	monitor.RegisterCheck("probe", func(context.Context, string) (CheckResult, error) {
		return CheckResult{Passed: true}, nil
	})

	for i := 0; i < 4; i++ {
		monitor.PerformHealthCheck(ctx, "agent-1")
	}

	summary := monitor.GetHealthSummary("agent-1")
	assert.Equal(t, models.StatusHealthy, summary.CurrentStatus)
	assert.Equal(t, 100.0, summary.UptimePercentage)
	assert.Equal(t, 4, summary.StatusDistribution[models.StatusHealthy])

	// Unknown agents report offline.
	assert.Equal(t, models.StatusOffline, monitor.GetHealthSummary("ghost").CurrentStatus)
}
