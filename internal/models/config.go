package models

import "time"

// AgentType identifies which behavior implementation backs an agent.
type AgentType string

const (
	AgentIncidentResponse AgentType = "incident_response"
	AgentKubernetes       AgentType = "kubernetes"
	AgentTerraform        AgentType = "terraform"
	AgentCostOptimization AgentType = "cost_optimization"
)

// AutomationLevel gates whether actions execute without human approval.
type AutomationLevel string

const (
	AutomationManual   AutomationLevel = "manual"
	AutomationSemiAuto AutomationLevel = "semi_auto"
	AutomationFullAuto AutomationLevel = "full_auto"
)

// Integration holds configuration for one named external integration.
type Integration struct {
	Name    string                 `json:"name" yaml:"name"`
	Type    string                 `json:"type" yaml:"type"`
	Config  map[string]interface{} `json:"config" yaml:"config"`
	Enabled bool                   `json:"enabled" yaml:"enabled"`
}

// AgentConfig is the per-agent configuration loaded from the
// configuration service.
type AgentConfig struct {
	ID               string             `json:"id" yaml:"id"`
	Name             string             `json:"name" yaml:"name"`
	Type             AgentType          `json:"type" yaml:"type"`
	Enabled          bool               `json:"enabled" yaml:"enabled"`
	AutomationLevel  AutomationLevel    `json:"automation_level" yaml:"automation_level"`
	Thresholds       map[string]float64 `json:"thresholds" yaml:"thresholds"`
	ApprovalRequired bool               `json:"approval_required" yaml:"approval_required"`
	Integrations     []Integration      `json:"integrations" yaml:"integrations"`
	CreatedAt        time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Threshold returns the named threshold or def when unset.
func (c *AgentConfig) Threshold(name string, def float64) float64 {
	if c == nil || c.Thresholds == nil {
		return def
	}
	if v, ok := c.Thresholds[name]; ok {
		return v
	}
	return def
}

// ThresholdBool interprets a threshold as a boolean flag: any value
// other than exactly 0 is true. Missing thresholds return def.
func (c *AgentConfig) ThresholdBool(name string, def bool) bool {
	if c == nil || c.Thresholds == nil {
		return def
	}
	v, ok := c.Thresholds[name]
	if !ok {
		return def
	}
	return v != 0
}

// IntegrationConfig returns the config map of the first enabled
// integration of the given type, or nil when absent.
func (c *AgentConfig) IntegrationConfig(integrationType string) map[string]interface{} {
	if c == nil {
		return nil
	}
	for _, integ := range c.Integrations {
		if integ.Type == integrationType && integ.Enabled {
			return integ.Config
		}
	}
	return nil
}
