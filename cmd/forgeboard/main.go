// Forgeboard monitor daemon: maintains the streaming connection to the
// generation server, serves the read-only status API, and posts Slack
// notifications for terminal generation events.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/forgeboard/forgeboard/pkg/api"
	"github.com/forgeboard/forgeboard/pkg/config"
	"github.com/forgeboard/forgeboard/pkg/monitor"
	"github.com/forgeboard/forgeboard/pkg/notify"
	"github.com/forgeboard/forgeboard/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("FORGEBOARD_CONFIG", "./forgeboard.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting forgeboard", "version", version.Full(), "config", *configPath)

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Monitor.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// 2. Build the monitor client
	client, err := monitor.New(monitor.Config{
		ServerURL:            cfg.Server.BaseURL,
		AutoReconnect:        cfg.Monitor.AutoReconnectEnabled(),
		MaxReconnectAttempts: cfg.Monitor.MaxReconnectAttempts,
		ReconnectInterval:    cfg.Monitor.ReconnectInterval,
		HeartbeatInterval:    cfg.Monitor.HeartbeatInterval,
		ConnectTimeout:       cfg.Monitor.ConnectTimeout,
		Debug:                cfg.Monitor.Debug,
	})
	if err != nil {
		slog.Error("Failed to create monitor client", "error", err)
		os.Exit(1)
	}

	// 3. Wire Slack notifications (nil service when disabled)
	var notifier *notify.Service
	if cfg.Slack.SlackEnabled() {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:   os.Getenv(cfg.Slack.TokenEnv),
			Channel: cfg.Slack.Channel,
		})
		if notifier == nil {
			slog.Warn("Slack enabled but token or channel missing, notifications disabled",
				"token_env", cfg.Slack.TokenEnv)
		}
	}
	subs := notifier.Attach(client)
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	// 4. Start the status API (non-blocking)
	errCh := make(chan error, 1)
	var statusServer *api.Server
	if cfg.Status.StatusEnabled() {
		statusServer = api.NewServer(client)
		go func() {
			slog.Info("Status API listening", "addr", cfg.Status.Addr)
			if err := statusServer.Start(cfg.Status.Addr); err != nil && err != http.ErrServerClosed {
				slog.Error("Status API error", "error", err)
				errCh <- err
			}
		}()
	}

	// 5. Connect. A failed first attempt is not fatal when auto-reconnect
	// is on; the scheduler keeps trying in the background.
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		if !cfg.Monitor.AutoReconnectEnabled() {
			slog.Error("Failed to connect to generation server", "error", err)
			os.Exit(1)
		}
		slog.Warn("Initial connection failed, reconnection scheduled", "error", err)
	}

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: disconnect first (cancels timers, closes the
	// transport cleanly), then stop the HTTP server.
	client.Disconnect()

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Status API shutdown error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
