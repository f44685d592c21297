package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var envVars = []string{
	"BRIDGE_NAME", "BRIDGE_TRANSPORT", "BRIDGE_ADDR", "BRIDGE_MODE", "NATS_URL",
	"BRIDGE_CODEC", "BRIDGE_HEARTBEAT", "BRIDGE_SHUTDOWN_TIMEOUT",
	"ETCD_ENDPOINTS", "BRIDGE_ADVERTISE_ADDR", "BRIDGE_VERSION", "BRIDGE_VERSION_CONSTRAINT", "BRIDGE_BALANCER",
	"DISPATCH_RATE", "DISPATCH_BURST", "DISPATCH_TIMEOUT", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.Name != "ext-bridge" {
		t.Errorf("config:config_test - Name = %q, want %q", cfg.Name, "ext-bridge")
	}
	if cfg.Transport != TransportTCP || cfg.Mode != ModeListen {
		t.Errorf("config:config_test - Transport/Mode = %q/%q, want tcp/listen", cfg.Transport, cfg.Mode)
	}
	if cfg.Heartbeat != 30*time.Second {
		t.Errorf("config:config_test - Heartbeat = %v, want 30s", cfg.Heartbeat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("config:config_test - ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.DiscoveryEnabled() {
		t.Error("config:config_test - expected discovery disabled by default")
	}
	if cfg.DispatchRate != 0 {
		t.Errorf("config:config_test - DispatchRate = %v, want 0", cfg.DispatchRate)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("config:config_test - SlogLevel = %v, want info", cfg.SlogLevel())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config:config_test - defaults must validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"BRIDGE_NAME":               "workspace-1",
		"BRIDGE_TRANSPORT":          "nats",
		"BRIDGE_MODE":               "dial",
		"NATS_URL":                  "nats://custom:4222",
		"BRIDGE_CODEC":              "binary",
		"BRIDGE_HEARTBEAT":          "0s",
		"ETCD_ENDPOINTS":            "10.0.0.1:2379,10.0.0.2:2379",
		"BRIDGE_VERSION_CONSTRAINT": "^1.2",
		"DISPATCH_RATE":             "50",
		"DISPATCH_BURST":            "10",
		"LOG_LEVEL":                 "debug",
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.Name != "workspace-1" {
		t.Errorf("config:config_test - Name = %q, want workspace-1", cfg.Name)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "10.0.0.2:2379" {
		t.Errorf("config:config_test - EtcdEndpoints = %v", cfg.EtcdEndpoints)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("config:config_test - Heartbeat = %v, want 0", cfg.Heartbeat)
	}
	if cfg.DispatchRate != 50 || cfg.DispatchBurst != 10 {
		t.Errorf("config:config_test - Dispatch = %v/%d, want 50/10", cfg.DispatchRate, cfg.DispatchBurst)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config:config_test - overrides must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Name: "b", Transport: TransportTCP, Addr: "127.0.0.1:1", Mode: ModeListen,
			Codec: "json", ShutdownTimeout: time.Second, DispatchBurst: 1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"unknown transport", func(c *Config) { c.Transport = "udp" }},
		{"tcp without addr", func(c *Config) { c.Addr = "" }},
		{"nats without url", func(c *Config) { c.Transport = TransportNATS; c.NATSURL = "" }},
		{"unknown mode", func(c *Config) { c.Mode = "serve" }},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"rate without burst", func(c *Config) { c.DispatchRate = 5; c.DispatchBurst = 0 }},
		{"negative dispatch timeout", func(c *Config) { c.DispatchTimeout = -time.Second }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("config:config_test - base config must validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("config:config_test - expected error")
			}
		})
	}
}
