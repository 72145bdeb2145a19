package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeboard/forgeboard/pkg/monitor"
	"github.com/forgeboard/forgeboard/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. The process itself is always
// serving; health degrades with the upstream connection so orchestrators
// can distinguish "daemon up, server unreachable" from "daemon down".
func (s *Server) healthHandler(c *echo.Context) error {
	state := s.client.State()

	status := healthStatusHealthy
	httpStatus := http.StatusOK
	switch state {
	case monitor.StateConnected:
		// healthy
	case monitor.StateConnecting, monitor.StateReconnecting:
		status = healthStatusDegraded
	default:
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		State:   state.String(),
		Version: version.GitCommit,
	})
}

// statusHandler handles GET /api/v1/status.
func (s *Server) statusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &StatusResponse{
		State: s.client.State().String(),
		Stats: s.client.StatsSnapshot(),
	})
}

// progressHandler handles GET /api/v1/progress.
func (s *Server) progressHandler(c *echo.Context) error {
	now := time.Now()
	snap := s.client.ProgressSnapshot()

	resp := &ProgressResponse{
		Progress:        snap,
		PercentComplete: snap.PercentComplete(),
		ElapsedSeconds:  snap.Elapsed(now).Seconds(),
	}
	if remaining, ok := snap.EstimatedRemaining(now); ok {
		secs := remaining.Seconds()
		resp.EstimatedRemaining = &secs
	}
	return c.JSON(http.StatusOK, resp)
}

// debugHandler handles GET /api/v1/debug.
func (s *Server) debugHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.client.DebugSnapshot())
}
