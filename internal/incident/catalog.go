package incident

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/opsagents/internal/models"
)

// DefaultRunbooks returns the built-in remediation catalog covering
// the most common incident categories.
func DefaultRunbooks() []*models.Runbook {
	return []*models.Runbook{
		{
			ID:               "service_down_basic",
			Name:             "Basic Service Recovery",
			Description:      "Standard procedure for service down incidents",
			IncidentPatterns: []string{TypeServiceDown},
			Steps: []models.RunbookStep{
				{Type: "diagnostic", Description: "Check service status", Command: "kubectl get pods -l app={service_name}", Timeout: 30 * time.Second},
				{Type: "remediation", Description: "Restart service", Command: "kubectl rollout restart deployment/{service_name}", Timeout: 2 * time.Minute, Critical: true},
				{Type: "verification", Description: "Verify service health", Command: "curl -f http://{service_name}/health", Timeout: time.Minute},
			},
			SuccessCriteria: []string{"Service pods are running", "Health endpoint ready", "No error logs in past 5 minutes"},
			RollbackSteps: []models.RunbookStep{
				{Type: "rollback", Description: "Rollback deployment", Command: "kubectl rollout undo deployment/{service_name}", Timeout: 2 * time.Minute},
			},
			RiskLevel:         models.RiskMedium,
			EstimatedDuration: 5 * time.Minute,
			SuccessRate:       0.85,
		},
		{
			ID:               "high_latency_basic",
			Name:             "Latency Investigation and Mitigation",
			Description:      "Standard procedure for high latency incidents",
			IncidentPatterns: []string{TypeHighLatency},
			Steps: []models.RunbookStep{
				{Type: "diagnostic", Description: "Check resource utilization", Command: "kubectl top pods -l app={service_name}", Timeout: 30 * time.Second},
				{Type: "diagnostic", Description: "Check database connections", Command: "check_db_connections {service_name}", Timeout: time.Minute},
				{Type: "remediation", Description: "Scale up service", Command: "kubectl scale deployment/{service_name} --replicas={target_replicas}", Timeout: 3 * time.Minute},
				{Type: "verification", Description: "Verify latency improvement", Command: "check_latency {service_name}", Timeout: 2 * time.Minute},
			},
			SuccessCriteria:   []string{"Average latency below threshold", "Resource usage normalized"},
			RiskLevel:         models.RiskLow,
			EstimatedDuration: 10 * time.Minute,
			SuccessRate:       0.75,
		},
		{
			ID:               "resource_exhaustion_basic",
			Name:             "Resource Exhaustion Recovery",
			Description:      "Standard procedure for resource exhaustion incidents",
			IncidentPatterns: []string{TypeResourceExhaustion},
			Steps: []models.RunbookStep{
				{Type: "diagnostic", Description: "Identify resource hogs", Command: "kubectl top pods --sort-by={resource_type}", Timeout: 30 * time.Second},
				{Type: "remediation", Description: "Clean up completed jobs", Command: "kubectl delete jobs --field-selector status.successful=1", Timeout: 2 * time.Minute},
				{Type: "remediation", Description: "Restart high-usage pods", Command: "kubectl delete pod {pod_name}", Timeout: time.Minute},
				{Type: "verification", Description: "Verify resource availability", Command: "kubectl top nodes", Timeout: 30 * time.Second},
			},
			SuccessCriteria:   []string{"Resource usage below 80%", "No resource errors in scheduler logs"},
			RiskLevel:         models.RiskMedium,
			EstimatedDuration: 8 * time.Minute,
			SuccessRate:       0.8,
		},
	}
}

// catalogFile is the YAML schema for externally supplied runbook
// catalogs. Durations are written as Go duration strings ("30s",
// "2m").
type catalogFile struct {
	Runbooks []catalogRunbook `yaml:"runbooks"`
}

type catalogRunbook struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description"`
	IncidentPatterns  []string         `yaml:"incident_patterns"`
	Steps             []catalogStep    `yaml:"steps"`
	SuccessCriteria   []string         `yaml:"success_criteria"`
	RollbackSteps     []catalogStep    `yaml:"rollback_steps"`
	RiskLevel         models.RiskLevel `yaml:"risk_level"`
	EstimatedDuration string           `yaml:"estimated_duration"`
	SuccessRate       float64          `yaml:"success_rate"`
}

type catalogStep struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Command     string `yaml:"command"`
	Timeout     string `yaml:"timeout"`
	Critical    bool   `yaml:"critical"`
}

// LoadCatalogFile parses a YAML runbook catalog.
func LoadCatalogFile(path string) ([]*models.Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runbook catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML catalog bytes into runbooks.
func ParseCatalog(data []byte) ([]*models.Runbook, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse runbook catalog: %w", err)
	}

	runbooks := make([]*models.Runbook, 0, len(file.Runbooks))
	for _, cr := range file.Runbooks {
		if cr.ID == "" {
			return nil, fmt.Errorf("runbook catalog entry %q is missing an id", cr.Name)
		}
		rb := &models.Runbook{
			ID:               cr.ID,
			Name:             cr.Name,
			Description:      cr.Description,
			IncidentPatterns: cr.IncidentPatterns,
			SuccessCriteria:  cr.SuccessCriteria,
			RiskLevel:        cr.RiskLevel,
			SuccessRate:      cr.SuccessRate,
		}
		if cr.EstimatedDuration != "" {
			d, err := time.ParseDuration(cr.EstimatedDuration)
			if err != nil {
				return nil, fmt.Errorf("runbook %s: invalid estimated_duration: %w", cr.ID, err)
			}
			rb.EstimatedDuration = d
		}
		for _, cs := range cr.Steps {
			step, err := cs.toStep(cr.ID)
			if err != nil {
				return nil, err
			}
			rb.Steps = append(rb.Steps, step)
		}
		for _, cs := range cr.RollbackSteps {
			step, err := cs.toStep(cr.ID)
			if err != nil {
				return nil, err
			}
			rb.RollbackSteps = append(rb.RollbackSteps, step)
		}
		runbooks = append(runbooks, rb)
	}
	return runbooks, nil
}

func (cs catalogStep) toStep(runbookID string) (models.RunbookStep, error) {
	step := models.RunbookStep{
		Type:        cs.Type,
		Description: cs.Description,
		Command:     cs.Command,
		Critical:    cs.Critical,
	}
	if cs.Timeout != "" {
		d, err := time.ParseDuration(cs.Timeout)
		if err != nil {
			return step, fmt.Errorf("runbook %s: invalid step timeout: %w", runbookID, err)
		}
		step.Timeout = d
	}
	return step, nil
}

// LoadCatalog loads a YAML catalog file into the executor, replacing
// same-ID runbooks.
func (e *RunbookExecutor) LoadCatalog(path string) error {
	runbooks, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	for _, rb := range runbooks {
		e.AddRunbook(rb)
	}
	return nil
}
