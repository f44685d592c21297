// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ext-bridge/codec"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

const (
	TransportTCP  = "tcp"
	TransportNATS = "nats"

	ModeListen = "listen"
	ModeDial   = "dial"
)

// Config holds bridge configuration.
type Config struct {
	// Name identifies the bridge: NATS subjects and the discovery key derive from it.
	Name string `envconfig:"BRIDGE_NAME" default:"ext-bridge"`

	// Transport: "tcp" carries the channel over one TCP connection, "nats" over NATS subjects.
	Transport string `envconfig:"BRIDGE_TRANSPORT" default:"tcp"`
	Addr      string `envconfig:"BRIDGE_ADDR" default:"127.0.0.1:7450"`
	// Mode: "listen" waits for the extension runtime, "dial" connects to it.
	Mode    string `envconfig:"BRIDGE_MODE" default:"listen"`
	NATSURL string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`

	Codec           string        `envconfig:"BRIDGE_CODEC" default:"json"`
	Heartbeat       time.Duration `envconfig:"BRIDGE_HEARTBEAT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"BRIDGE_SHUTDOWN_TIMEOUT" default:"5s"`

	// Discovery (empty ETCD_ENDPOINTS = disabled)
	EtcdEndpoints     []string `envconfig:"ETCD_ENDPOINTS"`
	AdvertiseAddr     string   `envconfig:"BRIDGE_ADVERTISE_ADDR"`
	Version           string   `envconfig:"BRIDGE_VERSION" default:"1.0.0"`
	VersionConstraint string   `envconfig:"BRIDGE_VERSION_CONSTRAINT"`
	Balancer          string   `envconfig:"BRIDGE_BALANCER" default:"round_robin"`

	// Inbound dispatch (DISPATCH_RATE 0 = unlimited)
	DispatchRate    float64       `envconfig:"DISPATCH_RATE" default:"0"`
	DispatchBurst   int           `envconfig:"DISPATCH_BURST" default:"100"`
	DispatchTimeout time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"0"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the configuration describes a runnable bridge.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s - BRIDGE_NAME is required", logPrefix)
	}
	switch c.Transport {
	case TransportTCP:
		if c.Addr == "" {
			return fmt.Errorf("%s - BRIDGE_ADDR is required for tcp", logPrefix)
		}
	case TransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("%s - NATS_URL is required for nats", logPrefix)
		}
	default:
		return fmt.Errorf("%s - BRIDGE_TRANSPORT must be tcp or nats, got %q", logPrefix, c.Transport)
	}
	if c.Mode != ModeListen && c.Mode != ModeDial {
		return fmt.Errorf("%s - BRIDGE_MODE must be listen or dial, got %q", logPrefix, c.Mode)
	}
	if _, err := codec.ParseType(c.Codec); err != nil {
		return fmt.Errorf("%s - BRIDGE_CODEC: %w", logPrefix, err)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%s - BRIDGE_HEARTBEAT must not be negative", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if c.DispatchRate < 0 || (c.DispatchRate > 0 && c.DispatchBurst <= 0) {
		return fmt.Errorf("%s - DISPATCH_RATE must be >= 0 and DISPATCH_BURST positive when limiting", logPrefix)
	}
	if c.DispatchTimeout < 0 {
		return fmt.Errorf("%s - DISPATCH_TIMEOUT must not be negative", logPrefix)
	}
	return nil
}

// DiscoveryEnabled reports whether etcd endpoints are configured.
func (c *Config) DiscoveryEnabled() bool {
	return len(c.EtcdEndpoints) > 0
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
