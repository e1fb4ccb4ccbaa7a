package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/cache"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

const (
	configKeyPrefix    = "agent_config:"
	configChangePrefix = "config_change:"
)

// RedisStore is a ConfigurationService backed by the shared cache
// store. Configurations are stored as JSON under agent_config:<id>
// and saves are announced on the config_change:<id> channel, so every
// service replica sees the change.
type RedisStore struct {
	store  cache.Store
	logger logging.Logger
}

// NewRedisStore builds a configuration service over the cache store.
func NewRedisStore(store cache.Store, log corelogger.Logger) *RedisStore {
	return &RedisStore{
		store:  store,
		logger: logging.FromCoreLogger(log),
	}
}

// LoadConfig fetches and decodes one agent configuration.
func (s *RedisStore) LoadConfig(ctx context.Context, agentID string) (*models.AgentConfig, error) {
	data, err := s.store.Get(ctx, configKeyPrefix+agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: config for agent %s", agent.ErrNotFound, agentID)
	}

	var cfg models.AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config for agent %s: %v", agent.ErrConfiguration, agentID, err)
	}
	return &cfg, nil
}

// LoadAllConfigs fetches every stored agent configuration. Individual
// decode failures are logged and skipped.
func (s *RedisStore) LoadAllConfigs(ctx context.Context) (map[string]*models.AgentConfig, error) {
	keys, err := s.store.Keys(ctx, configKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list agent configs: %w", err)
	}

	out := make(map[string]*models.AgentConfig, len(keys))
	for _, key := range keys {
		agentID := strings.TrimPrefix(key, configKeyPrefix)
		cfg, err := s.LoadConfig(ctx, agentID)
		if err != nil {
			s.logger.Error("Skipping unreadable agent config", "agent_id", agentID, "error", err)
			continue
		}
		out[agentID] = cfg
	}
	return out, nil
}

// SaveConfig stores the configuration and publishes a change
// notification for watchers.
func (s *RedisStore) SaveConfig(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("%w: save config without an agent id", agent.ErrConfiguration)
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.store.Set(ctx, configKeyPrefix+cfg.ID, cfg, 0); err != nil {
		return fmt.Errorf("save config for agent %s: %w", cfg.ID, err)
	}
	if err := s.store.Publish(ctx, configChangePrefix+cfg.ID, cfg); err != nil {
		// The save itself succeeded; watchers will catch up on restart.
		s.logger.Error("Failed to publish config change", "agent_id", cfg.ID, "error", err)
	}

	s.logger.Info("Saved agent configuration", "agent_id", cfg.ID)
	return nil
}

// WatchConfigChanges subscribes to the agent's change channel and
// invokes the callback with each decoded configuration.
func (s *RedisStore) WatchConfigChanges(ctx context.Context, agentID string, callback agent.ConfigChangeCallback) error {
	return s.store.Subscribe(ctx, configChangePrefix+agentID, func(payload string) {
		var cfg models.AgentConfig
		if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
			s.logger.Error("Discarding malformed config change", "agent_id", agentID, "error", err)
			return
		}
		callback(ctx, &cfg)
	})
}
