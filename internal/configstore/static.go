package configstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

// StaticStore is an in-process ConfigurationService seeded from a YAML
// file or from code. Saves notify watchers directly.
type StaticStore struct {
	logger logging.Logger

	mu       sync.Mutex
	configs  map[string]*models.AgentConfig
	watchers map[string][]agent.ConfigChangeCallback
}

// NewStaticStore builds an empty static store.
func NewStaticStore(log corelogger.Logger) *StaticStore {
	return &StaticStore{
		logger:   logging.FromCoreLogger(log),
		configs:  make(map[string]*models.AgentConfig),
		watchers: make(map[string][]agent.ConfigChangeCallback),
	}
}

// agentsFile is the YAML schema of a static agent configuration file.
type agentsFile struct {
	Agents []*models.AgentConfig `yaml:"agents"`
}

// LoadFromFile seeds the store from a YAML agents file.
func (s *StaticStore) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agents file %s: %w", path, err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse agents file %s: %w", path, err)
	}

	s.mu.Lock()
	for _, cfg := range file.Agents {
		if cfg.ID == "" {
			s.mu.Unlock()
			return fmt.Errorf("agents file %s: entry %q is missing an id", path, cfg.Name)
		}
		s.configs[cfg.ID] = cfg
	}
	count := len(file.Agents)
	s.mu.Unlock()

	s.logger.Info("Loaded agent configurations from file", "path", path, "count", count)
	return nil
}

// Put stores a configuration without notifying watchers, for seeding.
func (s *StaticStore) Put(cfg *models.AgentConfig) {
	s.mu.Lock()
	s.configs[cfg.ID] = cfg
	s.mu.Unlock()
}

// LoadConfig returns the configuration for an agent ID.
func (s *StaticStore) LoadConfig(_ context.Context, agentID string) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: config for agent %s", agent.ErrNotFound, agentID)
	}
	return cfg, nil
}

// LoadAllConfigs returns every stored configuration keyed by agent ID.
func (s *StaticStore) LoadAllConfigs(context.Context) (map[string]*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.AgentConfig, len(s.configs))
	for id, cfg := range s.configs {
		out[id] = cfg
	}
	return out, nil
}

// SaveConfig stores the configuration and synchronously notifies the
// agent's watchers.
func (s *StaticStore) SaveConfig(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("%w: save config without an agent id", agent.ErrConfiguration)
	}

	s.mu.Lock()
	s.configs[cfg.ID] = cfg
	callbacks := make([]agent.ConfigChangeCallback, len(s.watchers[cfg.ID]))
	copy(callbacks, s.watchers[cfg.ID])
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, cfg)
	}

	s.logger.Info("Saved agent configuration", "agent_id", cfg.ID, "watchers", len(callbacks))
	return nil
}

// WatchConfigChanges registers a callback invoked on every save for
// the agent.
func (s *StaticStore) WatchConfigChanges(_ context.Context, agentID string, callback agent.ConfigChangeCallback) error {
	s.mu.Lock()
	s.watchers[agentID] = append(s.watchers[agentID], callback)
	s.mu.Unlock()
	return nil
}
