package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// Dependencies bundles the collaborators handed to every behavior
// constructor.
type Dependencies struct {
	Bus     EventBus
	Configs ConfigurationService
	Audit   AuditService
	Logger  corelogger.Logger
}

// BehaviorConstructor builds the behavior backing one agent instance.
type BehaviorConstructor func(agentID string, deps Dependencies) Behavior

// Factory creates runtime instances for registered agent types.
type Factory struct {
	deps   Dependencies
	logger logging.Logger

	mu           sync.RWMutex
	constructors map[models.AgentType]BehaviorConstructor
}

// NewFactory builds an empty factory; register agent types before
// creating agents.
func NewFactory(deps Dependencies) *Factory {
	return &Factory{
		deps:         deps,
		logger:       logging.FromCoreLogger(deps.Logger),
		constructors: make(map[models.AgentType]BehaviorConstructor),
	}
}

// RegisterAgentType registers the behavior constructor for an agent
// type, replacing any previous registration.
func (f *Factory) RegisterAgentType(agentType models.AgentType, ctor BehaviorConstructor) {
	f.mu.Lock()
	f.constructors[agentType] = ctor
	f.mu.Unlock()
	f.logger.Info("Registered agent type", "type", agentType)
}

// SupportedTypes lists the agent types the factory can create.
func (f *Factory) SupportedTypes() []models.AgentType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]models.AgentType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	return types
}

// IsSupported reports whether an agent type has a registered
// constructor.
func (f *Factory) IsSupported(agentType models.AgentType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[agentType]
	return ok
}

// CreateAgent builds and initializes a runtime for the configured
// agent type. Unknown types fail with a descriptive error.
func (f *Factory) CreateAgent(ctx context.Context, cfg *models.AgentConfig) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: create agent with nil config", ErrConfiguration)
	}

	f.mu.RLock()
	ctor, ok := f.constructors[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no agent type registered for %q", ErrNotFound, cfg.Type)
	}

	behavior := ctor(cfg.ID, f.deps)
	rt := NewRuntime(cfg.ID, behavior, f.deps.Bus, f.deps.Configs, f.deps.Audit, f.deps.Logger)

	if err := rt.Initialize(ctx, cfg); err != nil {
		f.logger.Error("Failed to create agent", "agent_id", cfg.ID, "error", err)
		return nil, err
	}

	f.logger.Info("Created agent", "agent_id", cfg.ID, "type", cfg.Type)
	return rt, nil
}
