package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// AgentStatusSummary is the aggregate status row reported per agent.
type AgentStatusSummary struct {
	Type            models.AgentType       `json:"type"`
	Name            string                 `json:"name"`
	Enabled         bool                   `json:"enabled"`
	Running         bool                   `json:"running"`
	AutomationLevel models.AutomationLevel `json:"automation_level"`
	ErrorCount      int                    `json:"error_count"`
	LastError       string                 `json:"last_error,omitempty"`
}

// Registry tracks active agent instances by identifier. It is the only
// state shared across agent instances; all map access is serialized by
// a single mutex.
type Registry struct {
	logger logging.Logger

	mu      sync.Mutex
	agents  map[string]*Runtime
	configs map[string]*models.AgentConfig
}

// NewRegistry builds an empty registry.
func NewRegistry(log corelogger.Logger) *Registry {
	return &Registry{
		logger:  logging.FromCoreLogger(log),
		agents:  make(map[string]*Runtime),
		configs: make(map[string]*models.AgentConfig),
	}
}

// Register stores an agent instance. Registering a duplicate ID is a
// warning no-op.
func (r *Registry) Register(rt *Runtime, cfg *models.AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[cfg.ID]; exists {
		r.logger.Warn("Agent is already registered", "agent_id", cfg.ID)
		return
	}

	r.agents[cfg.ID] = rt
	r.configs[cfg.ID] = cfg
	r.logger.Info("Registered agent", "agent_id", cfg.ID)
}

// Unregister stops the instance (stop errors are logged, not
// propagated) and then removes it from the registry; the agent stays
// visible until its stop completes. Unknown IDs are a warning no-op.
func (r *Registry) Unregister(ctx context.Context, agentID string) {
	r.mu.Lock()
	rt, exists := r.agents[agentID]
	r.mu.Unlock()
	if !exists {
		r.logger.Warn("Agent is not registered", "agent_id", agentID)
		return
	}

	if err := rt.Stop(ctx); err != nil {
		r.logger.Error("Error stopping agent during unregister", "agent_id", agentID, "error", err)
	}

	r.mu.Lock()
	delete(r.agents, agentID)
	delete(r.configs, agentID)
	r.mu.Unlock()

	r.logger.Info("Unregistered agent", "agent_id", agentID)
}

// Get returns the agent instance for an ID, or nil.
func (r *Registry) Get(agentID string) *Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[agentID]
}

// GetConfig returns the registered configuration for an ID, or nil.
func (r *Registry) GetConfig(agentID string) *models.AgentConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configs[agentID]
}

// All returns a copy of the registered agents keyed by ID.
func (r *Registry) All() map[string]*Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Runtime, len(r.agents))
	for id, rt := range r.agents {
		out[id] = rt
	}
	return out
}

// ByType returns agents whose registered config matches the type.
func (r *Registry) ByType(agentType models.AgentType) map[string]*Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Runtime)
	for id, rt := range r.agents {
		if cfg := r.configs[id]; cfg != nil && cfg.Type == agentType {
			out[id] = rt
		}
	}
	return out
}

// Active returns the currently running agents.
func (r *Registry) Active() map[string]*Runtime {
	out := make(map[string]*Runtime)
	for id, rt := range r.All() {
		if rt.IsRunning() {
			out[id] = rt
		}
	}
	return out
}

// StartAgent starts a specific agent; unknown IDs are an error.
func (r *Registry) StartAgent(ctx context.Context, agentID string) error {
	rt := r.Get(agentID)
	if rt == nil {
		return fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	r.logger.Info("Started agent", "agent_id", agentID)
	return nil
}

// StopAgent stops a specific agent; unknown IDs are an error.
func (r *Registry) StopAgent(ctx context.Context, agentID string) error {
	rt := r.Get(agentID)
	if rt == nil {
		return fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}
	if err := rt.Stop(ctx); err != nil {
		return err
	}
	r.logger.Info("Stopped agent", "agent_id", agentID)
	return nil
}

// StartAll starts every registered agent that is not already running,
// isolating per-agent failures.
func (r *Registry) StartAll(ctx context.Context) {
	for id, rt := range r.All() {
		if rt.IsRunning() {
			continue
		}
		if err := rt.Start(ctx); err != nil {
			r.logger.Error("Failed to start agent", "agent_id", id, "error", err)
		}
	}
}

// StopAll stops every running agent, isolating per-agent failures.
func (r *Registry) StopAll(ctx context.Context) {
	for id, rt := range r.All() {
		if !rt.IsRunning() {
			continue
		}
		if err := rt.Stop(ctx); err != nil {
			r.logger.Error("Failed to stop agent", "agent_id", id, "error", err)
		}
	}
}

// ReloadAgentConfig applies a new configuration to one agent and
// records it in the registry.
func (r *Registry) ReloadAgentConfig(ctx context.Context, agentID string, cfg *models.AgentConfig) error {
	rt := r.Get(agentID)
	if rt == nil {
		return fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
	}

	if err := rt.ReloadConfig(ctx, cfg); err != nil {
		return err
	}

	r.mu.Lock()
	r.configs[agentID] = cfg
	r.mu.Unlock()

	r.logger.Info("Reloaded config for agent", "agent_id", agentID)
	return nil
}

// StatusSummary returns the aggregate status of every registered
// agent.
func (r *Registry) StatusSummary() map[string]AgentStatusSummary {
	r.mu.Lock()
	pairs := make(map[string]*Runtime, len(r.agents))
	cfgs := make(map[string]*models.AgentConfig, len(r.configs))
	for id, rt := range r.agents {
		pairs[id] = rt
		cfgs[id] = r.configs[id]
	}
	r.mu.Unlock()

	summary := make(map[string]AgentStatusSummary, len(pairs))
	for id, rt := range pairs {
		cfg := cfgs[id]
		if cfg == nil {
			continue
		}
		summary[id] = AgentStatusSummary{
			Type:            cfg.Type,
			Name:            cfg.Name,
			Enabled:         cfg.Enabled,
			Running:         rt.IsRunning(),
			AutomationLevel: cfg.AutomationLevel,
			ErrorCount:      rt.ErrorCount(),
			LastError:       rt.LastError(),
		}
	}
	return summary
}
