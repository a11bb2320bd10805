// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the master configuration for hubd, the Connection
// Hub / Session Broker replica process.
type ServerConfig struct {
	// ListenAddress is the HTTP/WebSocket listen address, e.g. ":8443".
	ListenAddress string `yaml:"listen_address"`

	// ReplicaID identifies this replica in the Presence Directory. If
	// empty at load time, the caller derives one (hostname-pid) since
	// a stable per-process value is required, not a config default.
	ReplicaID string `yaml:"replica_id"`

	// Redis configures the Presence Directory's backing store.
	Redis RedisConfig `yaml:"redis"`

	// Postgres configures the Snapshot Store and Agent record store.
	Postgres PostgresConfig `yaml:"postgres"`

	// Auth configures the Auth Authority client.
	Auth AuthConfig `yaml:"auth"`

	// Timing holds the interval and timeout constants from spec §4-5.
	Timing TimingConfig `yaml:"timing"`

	// MetricsListenAddress, if set, serves Prometheus metrics on this
	// address (e.g. ":9090"). Empty disables the metrics endpoint.
	MetricsListenAddress string `yaml:"metrics_listen_address"`
}

// AgentConfig is the master configuration for probed, the agent-side
// runtime.
type AgentConfig struct {
	// ServerURL is the hubd WebSocket endpoint, e.g. "wss://hub.example:8443/agent".
	ServerURL string `yaml:"server_url"`

	// AgentID and Secret authenticate this agent's hello frame.
	AgentID string `yaml:"agent_id"`
	Secret  string `yaml:"secret"`

	// Shell overrides the default shell launched for terminal sessions.
	// Empty means the PTY executor picks a default ($SHELL, then a platform shell).
	Shell string `yaml:"shell"`

	Timing TimingConfig `yaml:"timing"`
}

// RedisConfig configures the go-redis client backing the Presence
// Directory.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig configures the pgx pool backing the Snapshot Store
// and Agent record store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig configures the JWT-based Auth Authority client.
type AuthConfig struct {
	// SigningKeyFile holds the HS256 key that signs and verifies
	// operator bearer tokens.
	SigningKeyFile string `yaml:"signing_key_file"`

	// Issuer and Audience are checked on every validated token.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// TimingConfig holds the interval and timeout constants recommended in
// spec §4.1/§4.2/§4.4/§5. Durations are parsed from Go duration
// strings (e.g. "15s").
type TimingConfig struct {
	Heartbeat        time.Duration `yaml:"heartbeat"`
	HeartbeatMiss    time.Duration `yaml:"heartbeat_miss"`
	Presence         time.Duration `yaml:"presence"`
	OfflineDeclare   time.Duration `yaml:"offline_declare"`
	Inventory        time.Duration `yaml:"inventory"`
	ReconnectBase    time.Duration `yaml:"reconnect_base"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	Write            time.Duration `yaml:"write"`
	SessionIdle      time.Duration `yaml:"session_idle"`
	Drain            time.Duration `yaml:"drain"`
	HeartbeatCheck   time.Duration `yaml:"heartbeat_check"`
}

// DefaultTiming returns the concrete values spec §4.1 recommends.
func DefaultTiming() TimingConfig {
	return TimingConfig{
		Heartbeat:      15 * time.Second,
		HeartbeatMiss:  35 * time.Second,
		Presence:       45 * time.Second,
		OfflineDeclare: 60 * time.Second,
		Inventory:      5 * time.Minute,
		ReconnectBase:  1 * time.Second,
		ReconnectMax:   60 * time.Second,
		Write:          10 * time.Second,
		SessionIdle:    30 * time.Minute,
		Drain:          10 * time.Second,
		HeartbeatCheck: 5 * time.Second,
	}
}

// DefaultServerConfig returns a ServerConfig with sensible zero-values.
// It exists to guarantee every field is populated before a config file
// is merged in, not as a fallback — the config file is still required.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress: ":8443",
		Redis:         RedisConfig{Address: "127.0.0.1:6379"},
		Timing:        DefaultTiming(),
	}
}

// DefaultAgentConfig returns an AgentConfig with sensible zero-values.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Timing: DefaultTiming(),
	}
}

// LoadServer loads hubd configuration from the HUBD_CONFIG environment
// variable. There are no fallbacks: if HUBD_CONFIG is not set, this
// fails and the caller should direct the operator to --config.
func LoadServer() (*ServerConfig, error) {
	path := os.Getenv("HUBD_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("HUBD_CONFIG environment variable not set; " +
			"set it to the path of your hubd.yaml config file, or use --config")
	}
	return LoadServerFile(path)
}

// LoadServerFile loads hubd configuration from a specific file path.
func LoadServerFile(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAgent loads probed configuration from the PROBED_CONFIG
// environment variable.
func LoadAgent() (*AgentConfig, error) {
	path := os.Getenv("PROBED_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PROBED_CONFIG environment variable not set; " +
			"set it to the path of your probed.yaml config file, or use --config")
	}
	return LoadAgentFile(path)
}

// LoadAgentFile loads probed configuration from a specific file path.
func LoadAgentFile(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks a ServerConfig for missing required fields.
func (c *ServerConfig) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if c.Timing.Presence <= 2*c.Timing.Heartbeat {
		return fmt.Errorf("timing.presence (%s) must be strictly greater than 2x timing.heartbeat (%s)",
			c.Timing.Presence, c.Timing.Heartbeat)
	}
	if c.Timing.Presence >= c.Timing.OfflineDeclare {
		return fmt.Errorf("timing.presence (%s) must be less than timing.offline_declare (%s)",
			c.Timing.Presence, c.Timing.OfflineDeclare)
	}
	return nil
}

// Validate checks an AgentConfig for missing required fields.
func (c *AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	return nil
}
