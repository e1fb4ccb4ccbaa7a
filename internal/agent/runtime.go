package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/metrics"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// State is the lifecycle state of a Runtime:
// UNINITIALIZED -> INITIALIZED -> RUNNING -> STOPPED, where STOPPED may
// return to RUNNING via a subsequent Start.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateRunning       State = "running"
	StateStopped       State = "stopped"
)

const defaultHealthCheckInterval = 30 * time.Second

// runtimeCounters are the per-instance execution metrics exposed
// through health snapshots and the status summary.
type runtimeCounters struct {
	eventsProcessed   int64
	actionsExecuted   int64
	actionsSuccessful int64
	actionsFailed     int64
	avgExecutionTime  float64 // seconds
}

// Runtime is the generic agent lifecycle state machine. All agent
// types share it; type-specific semantics come from the injected
// Behavior.
type Runtime struct {
	agentID  string
	bus      EventBus
	configs  ConfigurationService
	audit    AuditService
	behavior Behavior
	logger   logging.Logger

	healthCheckInterval time.Duration

	mu            sync.Mutex
	state         State
	config        *models.AgentConfig
	startTime     time.Time
	lastHeartbeat time.Time
	errorCount    int
	lastError     string
	counters      runtimeCounters

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// NewRuntime builds a runtime around the given behavior and
// collaborators. The runtime starts UNINITIALIZED.
func NewRuntime(agentID string, behavior Behavior, bus EventBus, configs ConfigurationService, audit AuditService, log corelogger.Logger) *Runtime {
	return &Runtime{
		agentID:             agentID,
		bus:                 bus,
		configs:             configs,
		audit:               audit,
		behavior:            behavior,
		logger:              logging.FromCoreLogger(log),
		healthCheckInterval: defaultHealthCheckInterval,
		state:               StateUninitialized,
	}
}

// AgentID returns the agent identifier.
func (r *Runtime) AgentID() string { return r.agentID }

// IsRunning reports whether the runtime is in the RUNNING state.
func (r *Runtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRunning
}

// Config returns the current configuration (nil before Initialize).
func (r *Runtime) Config() *models.AgentConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// ErrorCount returns the number of errors recorded by this instance.
// The count is monotonically non-decreasing; it resets only when the
// agent is re-created.
func (r *Runtime) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount
}

// LastError returns the message of the most recent error, if any.
func (r *Runtime) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Metrics returns a copy of the runtime execution counters.
func (r *Runtime) Metrics() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"events_processed":   r.counters.eventsProcessed,
		"actions_executed":   r.counters.actionsExecuted,
		"actions_successful": r.counters.actionsSuccessful,
		"actions_failed":     r.counters.actionsFailed,
		"avg_execution_time": r.counters.avgExecutionTime,
	}
}

// Initialize stores the configuration, runs behavior initialization
// and registers for configuration change notifications. A nil config
// or a behavior failure is fatal and propagates.
func (r *Runtime) Initialize(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: agent %s initialized without configuration", ErrConfiguration, r.agentID)
	}

	r.mu.Lock()
	r.config = cfg
	r.mu.Unlock()

	r.logger.Info("Initializing agent", "agent_id", r.agentID, "type", cfg.Type)

	if err := r.behavior.InitializeSpecific(ctx, cfg); err != nil {
		r.recordError(err)
		return fmt.Errorf("initialize agent %s: %w", r.agentID, err)
	}

	// Config watching failures are non-fatal: the agent still works,
	// it just will not hot-reload. The registration outlives Stop, so
	// the callback itself drops notifications for a non-running agent.
	if err := r.configs.WatchConfigChanges(ctx, r.agentID, func(cctx context.Context, newCfg *models.AgentConfig) {
		if !r.IsRunning() {
			r.logger.Debug("Ignoring config change while not running", "agent_id", r.agentID)
			return
		}
		if err := r.ReloadConfig(cctx, newCfg); err != nil {
			r.logger.Error("Failed to apply config change", "agent_id", r.agentID, "error", err)
		}
	}); err != nil {
		r.logger.Warn("Could not set up config watching", "agent_id", r.agentID, "error", err)
	}

	r.mu.Lock()
	r.state = StateInitialized
	r.mu.Unlock()

	r.logger.Info("Agent initialized", "agent_id", r.agentID)
	return nil
}

// Start moves the runtime to RUNNING, spawns the health-check loop,
// subscribes to the behavior's event types and runs behavior startup.
// Already-running is a warning no-op. Any failure rolls the running
// state back and propagates.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		r.logger.Warn("Agent is already running", "agent_id", r.agentID)
		return nil
	}
	if r.config == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: agent %s not initialized", ErrConfiguration, r.agentID)
	}

	r.logger.Info("Starting agent", "agent_id", r.agentID)

	now := time.Now().UTC()
	r.state = StateRunning
	r.startTime = now
	r.lastHeartbeat = now

	loopCtx, cancel := context.WithCancel(context.Background())
	r.loopCancel = cancel
	r.loopWG.Add(1)
	r.mu.Unlock()

	go r.healthCheckLoop(loopCtx)

	if err := r.subscribeAndStart(ctx, loopCtx); err != nil {
		// Roll back to a stoppable state.
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		cancel()
		r.loopWG.Wait()
		r.recordError(err)
		return fmt.Errorf("start agent %s: %w", r.agentID, err)
	}

	metrics.RunningAgents.Inc()
	r.logger.Info("Agent started", "agent_id", r.agentID)
	return nil
}

func (r *Runtime) subscribeAndStart(ctx, loopCtx context.Context) error {
	if types := r.behavior.SubscribedEventTypes(); len(types) > 0 {
		if err := r.bus.Subscribe(ctx, types, func(ectx context.Context, event *models.SystemEvent) {
			if _, err := r.ProcessEvent(ectx, event); err != nil {
				r.logger.Error("Event processing failed", "agent_id", r.agentID, "event_id", event.ID, "error", err)
			}
		}); err != nil {
			return err
		}
	}

	return r.behavior.StartSpecific(loopCtx)
}

// Stop cancels the background loops, waits for them, and runs behavior
// teardown. Cancellation is expected control flow, never an error.
// Stopping an agent that is not running is a warning no-op, so Stop is
// idempotent.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		r.logger.Warn("Agent is not running", "agent_id", r.agentID)
		return nil
	}

	r.logger.Info("Stopping agent", "agent_id", r.agentID)
	r.state = StateStopped
	cancel := r.loopCancel
	r.loopCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.loopWG.Wait()

	if err := r.behavior.StopSpecific(ctx); err != nil && ctx.Err() == nil {
		// Teardown errors are recorded but do not prevent the stop.
		r.logger.Error("Error stopping agent", "agent_id", r.agentID, "error", err)
		r.recordError(err)
	}

	metrics.RunningAgents.Dec()
	r.logger.Info("Agent stopped", "agent_id", r.agentID)
	return nil
}

// ProcessEvent handles one system event. Events are ignored entirely
// when the agent is not running or disabled. The behavior may yield at
// most one action, which is published to the event bus. Handler errors
// are recorded and swallowed; processing never propagates them.
func (r *Runtime) ProcessEvent(ctx context.Context, event *models.SystemEvent) (*models.AgentAction, error) {
	r.mu.Lock()
	active := r.state == StateRunning && r.config != nil && r.config.Enabled
	if active {
		r.counters.eventsProcessed++
	}
	r.mu.Unlock()

	if !active {
		r.logger.Debug("Agent not active, skipping event", "agent_id", r.agentID, "event_id", event.ID)
		return nil, nil
	}

	metrics.EventsProcessed.WithLabelValues(r.agentID, string(event.Type)).Inc()

	if err := r.audit.LogEvent(ctx, event); err != nil {
		r.logger.Warn("Audit log of event failed", "agent_id", r.agentID, "event_id", event.ID, "error", err)
	}

	action, err := r.behavior.HandleEvent(ctx, event)
	if err != nil {
		r.recordError(err)
		return nil, nil
	}

	if action != nil {
		r.logger.Info("Generated action for event", "agent_id", r.agentID, "action_id", action.ID, "event_id", event.ID)
		if err := r.bus.PublishAction(ctx, action); err != nil {
			r.recordError(err)
		}
	}

	return action, nil
}

// ExecuteAction runs an action through the behavior executor. The
// action status moves PENDING -> EXECUTING -> {COMPLETED | FAILED};
// behavior errors and panics are converted into a failed ActionResult
// and never escape the runtime boundary. The action and result are
// always logged to the audit service.
func (r *Runtime) ExecuteAction(ctx context.Context, action *models.AgentAction) *models.ActionResult {
	start := time.Now()

	r.logger.Info("Executing action", "agent_id", r.agentID, "action_id", action.ID, "type", action.Type)

	if !r.IsRunning() {
		result := &models.ActionResult{
			Success:       false,
			Message:       "Action execution failed",
			Error:         fmt.Sprintf("%v: agent %s", ErrNotRunning, r.agentID),
			ExecutionTime: time.Since(start),
		}
		r.finishAction(ctx, action, result, start)
		return result
	}

	if err := action.Transition(models.ActionExecuting); err != nil {
		result := &models.ActionResult{
			Success:       false,
			Message:       "Action execution failed",
			Error:         err.Error(),
			ExecutionTime: time.Since(start),
		}
		r.recordError(err)
		r.logAction(ctx, action, result)
		return result
	}
	now := time.Now().UTC()
	action.ExecutedAt = &now

	result := r.executeSafely(ctx, action)
	result.ExecutionTime = time.Since(start)
	r.finishAction(ctx, action, result, start)
	return result
}

// executeSafely invokes the behavior executor, converting panics into
// a failed result.
func (r *Runtime) executeSafely(ctx context.Context, action *models.AgentAction) (result *models.ActionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: panic executing action %s: %v", ErrExecution, action.ID, rec)
			r.recordError(err)
			result = &models.ActionResult{
				Success: false,
				Message: "Action execution failed",
				Error:   err.Error(),
			}
		}
	}()

	res, err := r.behavior.ExecuteAction(ctx, action)
	if err != nil {
		r.recordError(err)
		return &models.ActionResult{
			Success: false,
			Message: "Action execution failed",
			Error:   err.Error(),
		}
	}
	if res == nil {
		res = &models.ActionResult{Success: false, Message: "Action produced no result", Error: ErrExecution.Error()}
	}
	return res
}

func (r *Runtime) finishAction(ctx context.Context, action *models.AgentAction, result *models.ActionResult, start time.Time) {
	r.mu.Lock()
	r.counters.actionsExecuted++
	if result.Success {
		r.counters.actionsSuccessful++
	} else {
		r.counters.actionsFailed++
	}
	// Running average over all executed actions:
	// avg' = (avg*(n-1) + sample) / n
	n := float64(r.counters.actionsExecuted)
	sample := time.Since(start).Seconds()
	r.counters.avgExecutionTime = (r.counters.avgExecutionTime*(n-1) + sample) / n
	r.mu.Unlock()

	if action.Status == models.ActionExecuting {
		next := models.ActionFailed
		if result.Success {
			next = models.ActionCompleted
		}
		if err := action.Transition(next); err != nil {
			r.recordError(err)
		}
	}
	action.Result = result

	metrics.ActionsExecuted.WithLabelValues(r.agentID, string(action.Type), fmt.Sprintf("%t", result.Success)).Inc()
	metrics.ActionExecutionDuration.WithLabelValues(r.agentID, string(action.Type)).Observe(time.Since(start).Seconds())

	r.logAction(ctx, action, result)
	r.logger.Info("Action finished", "agent_id", r.agentID, "action_id", action.ID, "success", result.Success)
}

func (r *Runtime) logAction(ctx context.Context, action *models.AgentAction, result *models.ActionResult) {
	if err := r.audit.LogAction(ctx, action, result); err != nil {
		r.logger.Warn("Audit log of action failed", "agent_id", r.agentID, "action_id", action.ID, "error", err)
	}
}

// GetHealthStatus derives a health snapshot from the error count:
// more than 10 errors is unhealthy, more than 5 degraded, otherwise
// healthy while running; offline when stopped. The snapshot is logged
// to the audit service.
func (r *Runtime) GetHealthStatus(ctx context.Context) *models.HealthStatus {
	r.mu.Lock()
	now := time.Now().UTC()

	var uptime time.Duration
	if !r.startTime.IsZero() {
		uptime = now.Sub(r.startTime)
	}

	var status models.AgentStatus
	switch {
	case r.state != StateRunning:
		status = models.StatusOffline
	case r.errorCount > 10:
		status = models.StatusUnhealthy
	case r.errorCount > 5:
		status = models.StatusDegraded
	default:
		status = models.StatusHealthy
	}

	heartbeat := r.lastHeartbeat
	if heartbeat.IsZero() {
		heartbeat = now
	}

	health := &models.HealthStatus{
		Status:        status,
		LastHeartbeat: heartbeat,
		Uptime:        uptime,
		ErrorCount:    r.errorCount,
		LastError:     r.lastError,
		Metrics: map[string]interface{}{
			"events_processed":   r.counters.eventsProcessed,
			"actions_executed":   r.counters.actionsExecuted,
			"actions_successful": r.counters.actionsSuccessful,
			"actions_failed":     r.counters.actionsFailed,
			"avg_execution_time": r.counters.avgExecutionTime,
		},
	}
	r.mu.Unlock()

	if err := r.audit.LogHealthStatus(ctx, r.agentID, health); err != nil {
		r.logger.Warn("Audit log of health status failed", "agent_id", r.agentID, "error", err)
	}

	return health
}

// ReloadConfig swaps the stored configuration and runs the behavior
// reload hook with old and new config. Failures propagate and are
// reflected in the error count.
func (r *Runtime) ReloadConfig(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: reload with nil config for agent %s", ErrConfiguration, r.agentID)
	}

	r.logger.Info("Reloading configuration", "agent_id", r.agentID)

	r.mu.Lock()
	oldCfg := r.config
	r.config = cfg
	r.mu.Unlock()

	if err := r.behavior.ReloadConfigSpecific(ctx, oldCfg, cfg); err != nil {
		r.recordError(err)
		metrics.ConfigReloads.WithLabelValues(r.agentID, "false").Inc()
		return fmt.Errorf("reload config for agent %s: %w", r.agentID, err)
	}

	metrics.ConfigReloads.WithLabelValues(r.agentID, "true").Inc()
	r.logger.Info("Configuration reloaded", "agent_id", r.agentID)
	return nil
}

// healthCheckLoop updates the heartbeat and runs the optional behavior
// health check every interval. Loop errors are recorded and the loop
// continues at the next tick; loop exit on cancellation is expected,
// non-error control flow.
func (r *Runtime) healthCheckLoop(ctx context.Context) {
	defer r.loopWG.Done()

	ticker := time.NewTicker(r.healthCheckInterval)
	defer ticker.Stop()

	checker, _ := r.behavior.(HealthChecker)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			r.lastHeartbeat = time.Now().UTC()
			r.mu.Unlock()

			if checker != nil {
				if err := checker.PerformHealthCheck(ctx); err != nil && ctx.Err() == nil {
					r.logger.Error("Health check failed", "agent_id", r.agentID, "error", err)
					r.recordError(err)
				}
			}
		}
	}
}

func (r *Runtime) recordError(err error) {
	r.mu.Lock()
	r.errorCount++
	r.lastError = err.Error()
	r.mu.Unlock()
	metrics.AgentErrors.WithLabelValues(r.agentID).Inc()
}
