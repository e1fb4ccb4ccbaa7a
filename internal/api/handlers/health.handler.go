package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/opsagents/pkg/cache"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

type HealthHandler struct {
	store  cache.Store // may be nil when running without Redis
	logger logger.Logger
}

func NewHealthHandler(store cache.Store, log logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: log}
}

// GET /health - quick liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "opsagents",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /ready - readiness check; depends on the cache store when one is
// configured.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "opsagents"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "opsagents",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "opsagents"})
}
