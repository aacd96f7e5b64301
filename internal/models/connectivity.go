package models

import "time"

// ProbeSample captures the outcome of a data source connectivity probe.
type ProbeSample struct {
	DataSource string    `json:"data_source"`
	OK         bool      `json:"ok"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
