package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads, expands, merges, and validates the configuration file.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand {{.ENV_VAR}} references
//  3. Parse into Config
//  4. Merge over built-in defaults (user values win)
//  5. Validate
//
// A missing file is not an error: the defaults are returned so the
// daemon can run against a local server with zero configuration.
func Load(path string) (*Config, error) {
	log := slog.With("config_file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("Config file not found, using defaults")
			cfg := DefaultConfig()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, &LoadError{File: path, Err: err}
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	// User values take precedence; defaults fill the gaps.
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("merging defaults: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("Configuration loaded",
		"server_url", cfg.Server.BaseURL,
		"auto_reconnect", cfg.Monitor.AutoReconnectEnabled(),
		"status_api", cfg.Status.StatusEnabled())
	return &cfg, nil
}

// Validate checks the merged configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return &ValidationError{Section: "server", Field: "base_url", Err: ErrMissingRequiredField}
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return &ValidationError{Section: "server", Field: "base_url",
			Err: fmt.Errorf("%w: must start with http:// or https://", ErrInvalidValue)}
	}

	if c.Monitor.MaxReconnectAttempts < 0 {
		return &ValidationError{Section: "monitor", Field: "max_reconnect_attempts",
			Err: fmt.Errorf("%w: must be non-negative", ErrInvalidValue)}
	}
	for field, d := range map[string]int64{
		"reconnect_interval": int64(c.Monitor.ReconnectInterval),
		"heartbeat_interval": int64(c.Monitor.HeartbeatInterval),
		"connect_timeout":    int64(c.Monitor.ConnectTimeout),
	} {
		if d <= 0 {
			return &ValidationError{Section: "monitor", Field: field,
				Err: fmt.Errorf("%w: must be a positive duration", ErrInvalidValue)}
		}
	}

	if c.Status.StatusEnabled() && c.Status.Addr == "" {
		return &ValidationError{Section: "status", Field: "addr", Err: ErrMissingRequiredField}
	}

	if c.Slack.SlackEnabled() {
		if c.Slack.Channel == "" {
			return &ValidationError{Section: "slack", Field: "channel", Err: ErrMissingRequiredField}
		}
		if c.Slack.TokenEnv == "" {
			return &ValidationError{Section: "slack", Field: "token_env", Err: ErrMissingRequiredField}
		}
	}

	return nil
}
