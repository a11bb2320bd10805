// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	if cfg.ListenAddress != ":8443" {
		t.Errorf("ListenAddress = %q, want :8443", cfg.ListenAddress)
	}
	if cfg.Timing.Heartbeat <= 0 {
		t.Errorf("Timing.Heartbeat = %v, want positive default", cfg.Timing.Heartbeat)
	}
}

func TestLoadServer_RequiresEnv(t *testing.T) {
	orig := os.Getenv("HUBD_CONFIG")
	defer os.Setenv("HUBD_CONFIG", orig)
	os.Unsetenv("HUBD_CONFIG")

	if _, err := LoadServer(); err == nil {
		t.Fatal("LoadServer() with HUBD_CONFIG unset should fail")
	}
}

func TestLoadServerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hubd.yaml")
	contents := `
listen_address: ":9443"
redis:
  address: "redis.internal:6379"
timing:
  heartbeat: 15s
  presence: 45s
  offline_declare: 60s
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadServerFile(path)
	if err != nil {
		t.Fatalf("LoadServerFile: %v", err)
	}
	if cfg.ListenAddress != ":9443" {
		t.Errorf("ListenAddress = %q, want :9443", cfg.ListenAddress)
	}
	if cfg.Redis.Address != "redis.internal:6379" {
		t.Errorf("Redis.Address = %q, want redis.internal:6379", cfg.Redis.Address)
	}
}

func TestServerConfigValidate_RejectsBadTiming(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Timing.Presence = cfg.Timing.Heartbeat // violates presence > 2*heartbeat

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject presence <= 2*heartbeat")
	}
}

func TestLoadAgentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probed.yaml")
	contents := `
server_url: "wss://hub.example:8443/agent"
agent_id: "agent-1"
secret: "s3cr3t"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadAgentFile(path)
	if err != nil {
		t.Fatalf("LoadAgentFile: %v", err)
	}
	if cfg.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", cfg.AgentID)
	}
}

func TestAgentConfigValidate_RequiresFields(t *testing.T) {
	cfg := DefaultAgentConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() on empty AgentConfig should fail")
	}
}
