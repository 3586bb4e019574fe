package config

import "testing"

func TestLoadRuntimeAppliesDefaults(t *testing.T) {
	t.Setenv("HUB_URL", "http://localhost:8080")
	t.Setenv("AGENT_ID", "agent-1")

	cfg, err := LoadRuntime()
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if cfg.KeepaliveMode != "off" {
		t.Errorf("expected default keepalive mode 'off', got %q", cfg.KeepaliveMode)
	}
	if cfg.KeepaliveIntervalMs != 3000 {
		t.Errorf("expected default keepalive interval 3000, got %d", cfg.KeepaliveIntervalMs)
	}
	if cfg.WaitTimeoutMs != 20000 {
		t.Errorf("expected default wait timeout 20000, got %d", cfg.WaitTimeoutMs)
	}
	if cfg.ReconnectMaxBackoffMs != 16000 {
		t.Errorf("expected default reconnect backoff cap 16000, got %d", cfg.ReconnectMaxBackoffMs)
	}
}

func TestLoadRuntimeReadsEnvironment(t *testing.T) {
	t.Setenv("HUB_URL", "http://hub.internal:9090?applicationId=app-1")
	t.Setenv("AGENT_ID", "media-agent")
	t.Setenv("KEEPALIVE_MODE", "active")
	t.Setenv("KEEPALIVE_INTERVAL_MS", "2500")
	t.Setenv("WAIT_TIMEOUT_MS", "45000")

	cfg, err := LoadRuntime()
	if err != nil {
		t.Fatalf("LoadRuntime failed: %v", err)
	}
	if cfg.HubURL != "http://hub.internal:9090?applicationId=app-1" {
		t.Errorf("unexpected hub url %q", cfg.HubURL)
	}
	if cfg.AgentID != "media-agent" {
		t.Errorf("unexpected agent id %q", cfg.AgentID)
	}
	if cfg.KeepaliveMode != "active" || cfg.KeepaliveIntervalMs != 2500 || cfg.WaitTimeoutMs != 45000 {
		t.Errorf("environment overrides not applied: %+v", cfg)
	}
}

func TestLoadRuntimeRequiresHubURLAndAgentID(t *testing.T) {
	t.Setenv("HUB_URL", "")
	t.Setenv("AGENT_ID", "")

	if _, err := LoadRuntime(); err == nil {
		t.Error("expected an error when HUB_URL is unset")
	}

	t.Setenv("HUB_URL", "http://localhost:8080")
	if _, err := LoadRuntime(); err == nil {
		t.Error("expected an error when AGENT_ID is unset")
	}
}

func TestLoadRuntimeRejectsUnknownKeepaliveMode(t *testing.T) {
	t.Setenv("HUB_URL", "http://localhost:8080")
	t.Setenv("AGENT_ID", "agent-1")
	t.Setenv("KEEPALIVE_MODE", "sometimes")

	if _, err := LoadRuntime(); err == nil {
		t.Error("expected an error for an unrecognized keepalive mode")
	}
}
