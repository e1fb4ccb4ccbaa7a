package agent

import (
	"context"
	"fmt"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
)

// Manager composes the factory and registry into complete agent
// lifecycle management.
type Manager struct {
	factory  *Factory
	registry *Registry
	configs  ConfigurationService
	logger   logging.Logger
}

// NewManager builds a manager around fresh factory and registry
// instances.
func NewManager(deps Dependencies) *Manager {
	return &Manager{
		factory:  NewFactory(deps),
		registry: NewRegistry(deps.Logger),
		configs:  deps.Configs,
		logger:   logging.FromCoreLogger(deps.Logger),
	}
}

// Registry exposes the underlying registry (read paths for the API
// layer).
func (m *Manager) Registry() *Registry { return m.registry }

// RegisterAgentType registers a behavior constructor with the factory.
func (m *Manager) RegisterAgentType(agentType models.AgentType, ctor BehaviorConstructor) {
	m.factory.RegisterAgentType(agentType, ctor)
}

// CreateAndRegister creates, initializes and registers a new agent.
func (m *Manager) CreateAndRegister(ctx context.Context, cfg *models.AgentConfig) (*Runtime, error) {
	rt, err := m.factory.CreateAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.registry.Register(rt, cfg)
	return rt, nil
}

// LoadAndStartAgents loads every enabled configuration from the
// configuration service and creates, registers and starts each agent.
// Per-agent failures are isolated so one bad configuration does not
// block the others; a failure to load the configurations themselves
// propagates.
func (m *Manager) LoadAndStartAgents(ctx context.Context) error {
	configs, err := m.configs.LoadAllConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load agent configurations: %w", err)
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		rt, err := m.CreateAndRegister(ctx, cfg)
		if err != nil {
			m.logger.Error("Failed to load agent", "agent_id", cfg.ID, "error", err)
			continue
		}
		if err := rt.Start(ctx); err != nil {
			m.logger.Error("Failed to start agent", "agent_id", cfg.ID, "error", err)
			continue
		}
		m.logger.Info("Loaded and started agent", "agent_id", cfg.ID)
	}

	m.logger.Info("Loaded agent configurations", "count", len(configs))
	return nil
}

// Shutdown stops and unregisters every agent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.registry.StopAll(ctx)
	for id := range m.registry.All() {
		m.registry.Unregister(ctx, id)
	}
	m.logger.Info("All agents shut down")
}

// Get returns an agent by ID, or nil.
func (m *Manager) Get(agentID string) *Runtime {
	return m.registry.Get(agentID)
}

// All returns all registered agents.
func (m *Manager) All() map[string]*Runtime {
	return m.registry.All()
}

// StatusSummary returns the aggregate status of all agents.
func (m *Manager) StatusSummary() map[string]AgentStatusSummary {
	return m.registry.StatusSummary()
}
