package api

import (
	"github.com/forgeboard/forgeboard/pkg/monitor"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`  // healthy, degraded, unhealthy
	State   string `json:"state"`   // connection state
	Version string `json:"version"` // build commit
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	State string        `json:"state"`
	Stats monitor.Stats `json:"stats"`
}

// ProgressResponse is the body of GET /api/v1/progress: the raw snapshot
// plus the derived figures the frontend renders directly.
type ProgressResponse struct {
	monitor.Progress

	PercentComplete    float64  `json:"percent_complete"`
	ElapsedSeconds     float64  `json:"elapsed_seconds"`
	EstimatedRemaining *float64 `json:"estimated_remaining_seconds,omitempty"`
}
