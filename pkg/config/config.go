// Configuration loading for the GCLink engine
//
// Copyright (C) 2026  GCLink Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config loads and validates the TOML configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"gclink/pkg/errors"
)

// Config is the root of the configuration file.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Link      LinkConfig      `toml:"link"`
	Log       LogConfig       `toml:"log"`
	Gateway   GatewayConfig   `toml:"gateway"`
}

// TransportConfig selects and parameterizes the byte transport.
type TransportConfig struct {
	// Kind is one of "serial", "tcp", "udp".
	Kind string `toml:"kind"`

	// Device is the serial device path (serial only).
	Device string `toml:"device"`

	// Baud is the serial line rate (serial only).
	Baud int `toml:"baud"`

	// Addr is the host:port endpoint (tcp/udp only).
	Addr string `toml:"addr"`
}

// LinkConfig tunes session detection.
type LinkConfig struct {
	// ForceProtocol pins detection: "", "mavlink1", "mavlink2", "msp".
	ForceProtocol string `toml:"force_protocol"`

	// HeartbeatGrace is the heartbeat wait before the MSP probe.
	HeartbeatGrace duration `toml:"heartbeat_grace"`

	// ProbeWindow bounds the MSP probe phase.
	ProbeWindow duration `toml:"probe_window"`

	// SystemID / ComponentID are our MAVLink identity.
	SystemID    int `toml:"system_id"`
	ComponentID int `toml:"component_id"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`

	// File, when set, routes logs to a rotating file.
	File string `toml:"file"`

	// MaxSizeMB and MaxBackups tune rotation.
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
}

// GatewayConfig tunes the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// duration wraps time.Duration for TOML string values like "4s".
type duration struct {
	time.Duration
}

// UnmarshalText implements toml decoding for durations.
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport: TransportConfig{Kind: "serial", Baud: 115200},
		Link: LinkConfig{
			HeartbeatGrace: duration{4 * time.Second},
			ProbeWindow:    duration{2 * time.Second},
			SystemID:       255,
			ComponentID:    190,
		},
		Log:     LogConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 5},
		Gateway: GatewayConfig{Addr: ":8455"},
	}
}

// Load reads path, layers it over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrConfigParse,
			fmt.Sprintf("parse %s", path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes configuration from a string (used by tests and
// embedded defaults).
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrConfigParse, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(msg string, args ...interface{}) error {
	return errors.New(errors.ErrConfigValidation, fmt.Sprintf(msg, args...))
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "serial":
		if c.Transport.Device == "" {
			return invalid("transport.device is required for serial")
		}
		if c.Transport.Baud <= 0 {
			return invalid("transport.baud must be positive, got %d", c.Transport.Baud)
		}
	case "tcp", "udp":
		if c.Transport.Addr == "" {
			return invalid("transport.addr is required for %s", c.Transport.Kind)
		}
	default:
		return invalid("transport.kind %q is not one of serial, tcp, udp", c.Transport.Kind)
	}

	switch c.Link.ForceProtocol {
	case "", "mavlink1", "mavlink2", "msp":
	default:
		return invalid("link.force_protocol %q is not one of mavlink1, mavlink2, msp",
			c.Link.ForceProtocol)
	}
	if c.Link.HeartbeatGrace.Duration <= 0 {
		return invalid("link.heartbeat_grace must be positive")
	}
	if c.Link.ProbeWindow.Duration <= 0 {
		return invalid("link.probe_window must be positive")
	}
	if c.Link.SystemID < 1 || c.Link.SystemID > 255 {
		return invalid("link.system_id %d out of range 1-255", c.Link.SystemID)
	}
	if c.Link.ComponentID < 1 || c.Link.ComponentID > 255 {
		return invalid("link.component_id %d out of range 1-255", c.Link.ComponentID)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q is not one of text, json", c.Log.Format)
	}

	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return invalid("gateway.addr is required when the gateway is enabled")
	}
	return nil
}
