package models

import "time"

// Alert is a single raw signal from a monitoring source. Alerts are
// immutable once created; correlation never mutates them.
type Alert struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Severity    string                 `json:"severity"` // low, medium, high, critical
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Labels      map[string]string      `json:"labels,omitempty"`
	Metrics     map[string]float64     `json:"metrics,omitempty"`
	RawData     map[string]interface{} `json:"raw_data,omitempty"`
}
