package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

const healthHistoryLimit = 100

// CheckResult is the outcome of one named health check.
type CheckResult struct {
	Passed  bool
	Message string
	Metrics map[string]float64
}

// HealthCheckFunc performs one health check for an agent. Returned
// errors (and panics) are converted into failed results; a failing
// check never aborts the batch.
type HealthCheckFunc func(ctx context.Context, agentID string) (CheckResult, error)

// AlertCallback fires when a monitored agent trips an alert condition.
type AlertCallback func(ctx context.Context, agentID string, status *models.HealthStatus, message string)

// AgentLister supplies the set of agent IDs the monitoring loop
// checks each cycle.
type AgentLister func() []string

// HealthMonitor runs pluggable health checks against agents, keeps a
// bounded per-agent history and fires alert callbacks on status
// patterns.
type HealthMonitor struct {
	checkInterval time.Duration
	listAgents    AgentLister
	logger        logging.Logger

	mu        sync.Mutex
	checks    map[string]HealthCheckFunc
	history   map[string][]*models.HealthStatus
	callbacks []AlertCallback
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewHealthMonitor builds a monitor. listAgents may be nil; the
// monitoring loop then idles and checks run only on demand.
func NewHealthMonitor(checkInterval time.Duration, listAgents AgentLister, log corelogger.Logger) *HealthMonitor {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &HealthMonitor{
		checkInterval: checkInterval,
		listAgents:    listAgents,
		logger:        logging.FromCoreLogger(log),
		checks:        make(map[string]HealthCheckFunc),
		history:       make(map[string][]*models.HealthStatus),
	}
}

// RegisterCheck registers a named health check function.
func (m *HealthMonitor) RegisterCheck(name string, check HealthCheckFunc) {
	m.mu.Lock()
	m.checks[name] = check
	m.mu.Unlock()
	m.logger.Debug("Registered health check", "name", name)
}

// RegisterAlertCallback registers a callback for health alerts.
func (m *HealthMonitor) RegisterAlertCallback(cb AlertCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
	m.logger.Debug("Registered health alert callback")
}

// Start launches the periodic monitoring loop. Starting an already
// running monitor is a warning no-op.
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("Health monitor is already running")
		return
	}
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.monitoringLoop(ctx)
	m.logger.Info("Health monitoring started")
}

// Stop cancels the monitoring loop and waits for it. Idempotent.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("Health monitoring stopped")
}

func (m *HealthMonitor) monitoringLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.listAgents == nil {
				m.logger.Debug("Health monitoring cycle")
				continue
			}
			for _, agentID := range m.listAgents() {
				m.PerformHealthCheck(ctx, agentID)
			}
		}
	}
}

// PerformHealthCheck runs every registered check for the agent.
// Individual check failures are converted into failed results rather
// than aborting the batch. Overall status: offline when zero checks
// ran, healthy when zero failed, degraded when at most half failed,
// unhealthy otherwise.
func (m *HealthMonitor) PerformHealthCheck(ctx context.Context, agentID string) *models.HealthStatus {
	m.mu.Lock()
	checks := make(map[string]HealthCheckFunc, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.Unlock()

	var (
		results        []CheckResult
		overallMetrics = make(map[string]interface{})
	)

	for name, fn := range checks {
		result := m.runCheck(ctx, name, agentID, fn)
		results = append(results, result)
		for k, v := range result.Metrics {
			overallMetrics[k] = v
		}
	}

	var failed []CheckResult
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}

	var status models.AgentStatus
	switch {
	case len(results) == 0:
		status = models.StatusOffline
	case len(failed) == 0:
		status = models.StatusHealthy
	case len(failed)*2 <= len(results):
		status = models.StatusDegraded
	default:
		status = models.StatusUnhealthy
	}

	health := &models.HealthStatus{
		Status:        status,
		LastHeartbeat: time.Now().UTC(),
		ErrorCount:    len(failed),
		Metrics:       overallMetrics,
	}
	if len(failed) > 0 {
		health.LastError = failed[0].Message
	}

	m.appendHistory(agentID, health)
	m.checkForAlerts(ctx, agentID, health)

	return health
}

func (m *HealthMonitor) runCheck(ctx context.Context, name, agentID string, fn HealthCheckFunc) (result CheckResult) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("Health check panicked", "check", name, "agent_id", agentID, "panic", rec)
			result = CheckResult{Passed: false, Message: fmt.Sprintf("check %s panicked: %v", name, rec)}
		}
	}()

	res, err := fn(ctx, agentID)
	if err != nil {
		m.logger.Error("Health check failed", "check", name, "agent_id", agentID, "error", err)
		return CheckResult{Passed: false, Message: fmt.Sprintf("check %s failed: %v", name, err)}
	}
	return res
}

func (m *HealthMonitor) appendHistory(agentID string, health *models.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := append(m.history[agentID], health)
	if len(hist) > healthHistoryLimit {
		hist = hist[len(hist)-healthHistoryLimit:]
	}
	m.history[agentID] = hist
}

// GetHealthHistory returns the recorded checks for an agent within the
// lookback window.
func (m *HealthMonitor) GetHealthHistory(agentID string, lookback time.Duration) []*models.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-lookback)
	var out []*models.HealthStatus
	for _, h := range m.history[agentID] {
		if !h.LastHeartbeat.Before(cutoff) {
			out = append(out, h)
		}
	}
	return out
}

// HealthSummary aggregates an agent's recent health history.
type HealthSummary struct {
	CurrentStatus      models.AgentStatus         `json:"current_status"`
	UptimePercentage   float64                    `json:"uptime_percentage"`
	AvgErrorCount      float64                    `json:"avg_error_count"`
	StatusDistribution map[models.AgentStatus]int `json:"status_distribution"`
	LastCheck          time.Time                  `json:"last_check"`
}

// GetHealthSummary summarizes the last 24 hours of checks for an
// agent. An agent without history reports offline with zeroes.
func (m *HealthMonitor) GetHealthSummary(agentID string) HealthSummary {
	history := m.GetHealthHistory(agentID, 24*time.Hour)
	summary := HealthSummary{
		CurrentStatus:      models.StatusOffline,
		StatusDistribution: make(map[models.AgentStatus]int),
	}
	if len(history) == 0 {
		return summary
	}

	healthy := 0
	totalErrors := 0
	for _, h := range history {
		summary.StatusDistribution[h.Status]++
		totalErrors += h.ErrorCount
		if h.Status == models.StatusHealthy {
			healthy++
		}
	}

	last := history[len(history)-1]
	summary.CurrentStatus = last.Status
	summary.LastCheck = last.LastHeartbeat
	summary.UptimePercentage = float64(healthy) / float64(len(history)) * 100
	summary.AvgErrorCount = float64(totalErrors) / float64(len(history))
	return summary
}

// checkForAlerts fires registered callbacks when: the agent went
// healthy -> unhealthy, the last 10 checks were all degraded, or the
// error count exceeds 50.
func (m *HealthMonitor) checkForAlerts(ctx context.Context, agentID string, health *models.HealthStatus) {
	m.mu.Lock()
	hist := m.history[agentID]
	callbacks := make([]AlertCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	var message string
	switch {
	case len(hist) >= 2 &&
		hist[len(hist)-2].Status == models.StatusHealthy &&
		health.Status == models.StatusUnhealthy:
		message = fmt.Sprintf("agent %s became unhealthy", agentID)
	case len(hist) >= 10 && allDegraded(hist[len(hist)-10:]):
		message = fmt.Sprintf("agent %s has been degraded for an extended period", agentID)
	case health.ErrorCount > 50:
		message = fmt.Sprintf("agent %s has high error count: %d", agentID, health.ErrorCount)
	default:
		return
	}

	for _, cb := range callbacks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Error("Alert callback panicked", "agent_id", agentID, "panic", rec)
				}
			}()
			cb(ctx, agentID, health, message)
		}()
	}
}

func allDegraded(history []*models.HealthStatus) bool {
	for _, h := range history {
		if h.Status != models.StatusDegraded {
			return false
		}
	}
	return true
}
