package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/audit"
	"github.com/platformbuilds/opsagents/internal/bus"
	"github.com/platformbuilds/opsagents/internal/config"
	"github.com/platformbuilds/opsagents/internal/configstore"
	"github.com/platformbuilds/opsagents/internal/incident"
	"github.com/platformbuilds/opsagents/internal/models"
	"github.com/platformbuilds/opsagents/pkg/cache"
	"github.com/platformbuilds/opsagents/pkg/logger"
)

func newTestServer(t *testing.T) (*Server, *agent.Manager) {
	t.Helper()
	log := logger.NewNop()
	manager := agent.NewManager(agent.Dependencies{
		Bus:     bus.NewMemoryBus(log),
		Configs: configstore.NewStaticStore(log),
		Audit:   audit.NewLogAudit(log),
		Logger:  log,
	})
	manager.RegisterAgentType(models.AgentIncidentResponse, incident.NewResponseBehavior)

	cfg := &config.Config{Environment: "test", Port: 8080}
	return NewServer(cfg, log, manager, cache.NewMemoryStore()), manager
}

func doRequest(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(server.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server.Router(), http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(server.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAgentLifecycleOverAPI(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	body, err := json.Marshal(&models.AgentConfig{
		ID:      "ir-1",
		Name:    "incident response",
		Type:    models.AgentIncidentResponse,
		Enabled: true,
	})
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPost, "/api/v1/agents", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/v1/agents/ir-1/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	rec = doRequest(router, http.MethodGet, "/api/v1/agents/ir-1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/agents/ir-1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/v1/agents/ir-1/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAgentValidation(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doRequest(router, http.MethodPost, "/api/v1/agents", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, err := json.Marshal(&models.AgentConfig{Name: "anonymous"})
	require.NoError(t, err)
	rec = doRequest(router, http.MethodPost, "/api/v1/agents", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unregistered agent types are rejected at creation.
	body, err = json.Marshal(&models.AgentConfig{ID: "x-1", Type: models.AgentType("unknown_kind")})
	require.NoError(t, err)
	rec = doRequest(router, http.MethodPost, "/api/v1/agents", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUnknownAgentReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doRequest(router, http.MethodPost, "/api/v1/agents/ghost/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/agents/ghost/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/agents/ghost/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
