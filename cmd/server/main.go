package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/api"
	"github.com/platformbuilds/opsagents/internal/audit"
	"github.com/platformbuilds/opsagents/internal/bus"
	"github.com/platformbuilds/opsagents/internal/config"
	"github.com/platformbuilds/opsagents/internal/configstore"
	"github.com/platformbuilds/opsagents/internal/incident"
	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/cache"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)
	logg.Info("Starting opsagents", "environment", cfg.Environment)

	store := buildStore(cfg, logg)
	defer store.Close()

	configs, static := buildConfigStore(cfg, store, logg)
	auditSvc := buildAudit(cfg, store, logg)
	eventBus := bus.NewMemoryBus(logg)

	manager := agent.NewManager(agent.Dependencies{
		Bus:     eventBus,
		Configs: configs,
		Audit:   auditSvc,
		Logger:  logg,
	})
	manager.RegisterAgentType(models.AgentIncidentResponse, incident.NewResponseBehavior)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.LoadAndStartAgents(ctx); err != nil {
		logg.Fatal("Failed to load agents", "error", err)
	}

	monitor := agent.NewHealthMonitor(
		time.Duration(cfg.Agents.HealthCheckInterval)*time.Second,
		func() []string {
			agents := manager.All()
			ids := make([]string, 0, len(agents))
			for id := range agents {
				ids = append(ids, id)
			}
			return ids
		},
		logg,
	)
	monitor.RegisterCheck("runtime_status", func(ctx context.Context, agentID string) (agent.CheckResult, error) {
		rt := manager.Get(agentID)
		if rt == nil {
			return agent.CheckResult{Message: "agent not registered"}, nil
		}
		status := rt.GetHealthStatus(ctx)
		passed := status.Status == models.StatusHealthy || status.Status == models.StatusDegraded
		return agent.CheckResult{Passed: passed, Message: status.LastError}, nil
	})
	monitor.Start()

	if static != nil && cfg.Agents.File != "" {
		watcher := config.NewWatcher(cfg.Agents.File, logg)
		watcher.Register(func(fresh *config.Config) {
			reloadAgents(ctx, fresh.Agents.File, static, manager, logg)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logg.Warn("Agents file watcher unavailable", "path", cfg.Agents.File, "error", err)
			}
		}()
	}

	apiServer := api.NewServer(cfg, logg, manager, store)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logg.Info("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logg.Error("API shutdown failed", "error", err)
		}
		monitor.Stop()
		manager.Shutdown(shutdownCtx)
		cancel()
	}()

	if err := apiServer.Start(); err != nil {
		logg.Fatal("Server failed", "error", err)
	}

	logg.Info("opsagents shutdown complete")
}

// buildStore selects the Redis-backed store when the cache is enabled,
// and the in-process store otherwise.
func buildStore(cfg *config.Config, logg logger.Logger) cache.Store {
	if !cfg.Cache.Enabled {
		logg.Info("Cache disabled, using in-process store")
		return cache.NewMemoryStore()
	}
	store, err := cache.NewRedisSingle(cfg.Cache.Addr, cfg.Cache.DB, cfg.Cache.Password,
		time.Duration(cfg.Cache.TTL)*time.Second, logg)
	if err != nil {
		logg.Fatal("Failed to connect to cache", "addr", cfg.Cache.Addr, "error", err)
	}
	logg.Info("Cache initialized", "addr", cfg.Cache.Addr)
	return store
}

// buildConfigStore prefers the shared Redis store; without a cache it
// seeds a static store from the agents file. The static store is also
// returned concretely so the file watcher can re-seed it.
func buildConfigStore(cfg *config.Config, store cache.Store, logg logger.Logger) (agent.ConfigurationService, *configstore.StaticStore) {
	if cfg.Cache.Enabled {
		return configstore.NewRedisStore(store, logg), nil
	}

	static := configstore.NewStaticStore(logg)
	if cfg.Agents.File != "" {
		if err := static.LoadFromFile(cfg.Agents.File); err != nil {
			logg.Warn("Could not load agents file, starting empty", "path", cfg.Agents.File, "error", err)
		}
	}
	return static, static
}

// reloadAgents re-seeds the static store from the agents file and
// applies the fresh configurations to the running agents.
func reloadAgents(ctx context.Context, path string, static *configstore.StaticStore, manager *agent.Manager, logg logger.Logger) {
	if err := static.LoadFromFile(path); err != nil {
		logg.Error("Failed to reload agents file", "path", path, "error", err)
		return
	}

	all, err := static.LoadAllConfigs(ctx)
	if err != nil {
		logg.Error("Failed to read reloaded agent configs", "error", err)
		return
	}
	for id, agentCfg := range all {
		if manager.Get(id) == nil {
			continue
		}
		if err := manager.Registry().ReloadAgentConfig(ctx, id, agentCfg); err != nil {
			logg.Error("Failed to apply reloaded config", "agent_id", id, "error", err)
		}
	}
}

func buildAudit(cfg *config.Config, store cache.Store, logg logger.Logger) agent.AuditService {
	if cfg.Audit.Backend == "redis" {
		return audit.NewRedisAudit(store)
	}
	return audit.NewLogAudit(logg)
}
