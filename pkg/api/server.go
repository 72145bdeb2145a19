// Package api exposes the monitor's read-only queries over HTTP for the
// control-panel frontend: connection state, progress, stats, and a debug
// dump. There are no mutation routes; the monitor is driven by its own
// connection lifecycle, not by this API.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/forgeboard/forgeboard/pkg/monitor"
)

// Server is the status HTTP server.
type Server struct {
	client *monitor.Client
	echo   *echo.Echo
	http   *http.Server
}

// NewServer creates the status server for a monitor client.
func NewServer(client *monitor.Client) *Server {
	e := echo.New()
	s := &Server{client: client, echo: e}

	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/api/v1/status", s.statusHandler)
	e.GET("/api/v1/progress", s.progressHandler)
	e.GET("/api/v1/debug", s.debugHandler)

	return s
}

// Start serves until Shutdown or a listener error. Blocking.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
