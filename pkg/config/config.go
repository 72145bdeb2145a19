// Package config loads and validates forgeboard.yaml: the generation
// server address, the monitor's reconnection and heartbeat tuning, the
// status API listener, and optional Slack notification settings.
package config

import "time"

// Config is the fully merged and validated configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Status  StatusConfig  `yaml:"status"`
	Slack   SlackConfig   `yaml:"slack"`
}

// ServerConfig locates the generation server.
type ServerConfig struct {
	// BaseURL is the server's HTTP address; the streaming endpoint is
	// derived from it by scheme swap.
	BaseURL string `yaml:"base_url"`
}

// MonitorConfig tunes the streaming client.
type MonitorConfig struct {
	// AutoReconnect is a pointer so "absent" and "false" are
	// distinguishable; absent means the default (enabled).
	AutoReconnect *bool `yaml:"auto_reconnect,omitempty"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	Debug                bool          `yaml:"debug"`
}

// AutoReconnectEnabled resolves the pointer against the default.
func (m *MonitorConfig) AutoReconnectEnabled() bool {
	if m.AutoReconnect == nil {
		return true
	}
	return *m.AutoReconnect
}

// StatusConfig controls the read-only status HTTP API.
type StatusConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"` // default: enabled
	Addr    string `yaml:"addr"`
}

// StatusEnabled resolves the pointer against the default.
func (s *StatusConfig) StatusEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// SlackConfig holds Slack notification settings. The token itself stays
// in the environment; only the variable name is configured.
type SlackConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"` // default: disabled
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// SlackEnabled resolves the pointer against the default.
func (s *SlackConfig) SlackEnabled() bool {
	return s.Enabled != nil && *s.Enabled
}

// DefaultConfig returns the built-in defaults. User YAML is merged over
// these, so an empty file yields a runnable configuration pointed at a
// local server.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8188",
		},
		Monitor: MonitorConfig{
			MaxReconnectAttempts: 10,
			ReconnectInterval:    5 * time.Second,
			HeartbeatInterval:    30 * time.Second,
			ConnectTimeout:       10 * time.Second,
		},
		Status: StatusConfig{
			Addr: ":8189",
		},
		Slack: SlackConfig{
			TokenEnv: "SLACK_BOT_TOKEN",
		},
	}
}
