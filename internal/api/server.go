package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/api/handlers"
	"github.com/platformbuilds/opsagents/internal/config"
	"github.com/platformbuilds/opsagents/pkg/cache"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

// Server is the admin HTTP surface: agent lifecycle endpoints, health
// probes and Prometheus metrics. It carries no authentication; that
// belongs to the gateway in front of it.
type Server struct {
	config     *config.Config
	logger     logger.Logger
	manager    *agent.Manager
	store      cache.Store
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(cfg *config.Config, log logger.Logger, manager *agent.Manager, store cache.Store) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:  cfg,
		logger:  log,
		manager: manager,
		store:   store,
		router:  gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestLogger(s.logger))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.store, s.logger)
	agentHandler := handlers.NewAgentHandler(s.manager, s.logger)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/agents", agentHandler.ListAgents)
		v1.POST("/agents", agentHandler.CreateAgent)
		v1.GET("/agents/:id/status", agentHandler.AgentStatus)
		v1.POST("/agents/:id/start", agentHandler.StartAgent)
		v1.POST("/agents/:id/stop", agentHandler.StopAgent)
		v1.GET("/agents/:id/health", agentHandler.AgentHealth)
		v1.PUT("/agents/:id/config", agentHandler.ReloadAgentConfig)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Admin API listening", "port", s.config.Port, "environment", s.config.Environment)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
