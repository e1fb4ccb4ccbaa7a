package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

// AgentHandler exposes the agent lifecycle over the admin API.
type AgentHandler struct {
	manager *agent.Manager
	logger  logger.Logger
}

func NewAgentHandler(manager *agent.Manager, log logger.Logger) *AgentHandler {
	return &AgentHandler{manager: manager, logger: log}
}

// GET /api/v1/agents - status summary of every registered agent
func (h *AgentHandler) ListAgents(c *gin.Context) {
	summary := h.manager.StatusSummary()
	c.JSON(http.StatusOK, gin.H{
		"agents": summary,
		"count":  len(summary),
	})
}

// POST /api/v1/agents - create and register a new agent
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	var cfg models.AgentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent config: " + err.Error()})
		return
	}
	if cfg.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent config requires an id"})
		return
	}

	if _, err := h.manager.CreateAndRegister(c.Request.Context(), &cfg); err != nil {
		h.logger.Error("Failed to create agent", "agent_id", cfg.ID, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"agent_id": cfg.ID, "status": "created"})
}

// GET /api/v1/agents/:id/status - one agent's summary row
func (h *AgentHandler) AgentStatus(c *gin.Context) {
	agentID := c.Param("id")
	summary, ok := h.manager.StatusSummary()[agentID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found: " + agentID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "status": summary})
}

// POST /api/v1/agents/:id/start
func (h *AgentHandler) StartAgent(c *gin.Context) {
	agentID := c.Param("id")
	if err := h.manager.Registry().StartAgent(c.Request.Context(), agentID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "status": "started"})
}

// POST /api/v1/agents/:id/stop
func (h *AgentHandler) StopAgent(c *gin.Context) {
	agentID := c.Param("id")
	if err := h.manager.Registry().StopAgent(c.Request.Context(), agentID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "status": "stopped"})
}

// GET /api/v1/agents/:id/health - live health snapshot of one agent
func (h *AgentHandler) AgentHealth(c *gin.Context) {
	agentID := c.Param("id")
	rt := h.manager.Get(agentID)
	if rt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found: " + agentID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agentID,
		"health":   rt.GetHealthStatus(c.Request.Context()),
	})
}

// PUT /api/v1/agents/:id/config - apply a new configuration to a
// running agent
func (h *AgentHandler) ReloadAgentConfig(c *gin.Context) {
	agentID := c.Param("id")

	var cfg models.AgentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent config: " + err.Error()})
		return
	}
	cfg.ID = agentID

	if err := h.manager.Registry().ReloadAgentConfig(c.Request.Context(), agentID, &cfg); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "status": "config reloaded"})
}

func statusForError(err error) int {
	if agent.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
