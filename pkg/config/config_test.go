package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gclink/pkg/errors"
)

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Parse(`
[transport]
kind = "tcp"
addr = "127.0.0.1:5760"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Link.HeartbeatGrace.Duration != 4*time.Second {
		t.Errorf("heartbeat_grace = %v, want 4s default", cfg.Link.HeartbeatGrace.Duration)
	}
	if cfg.Link.SystemID != 255 || cfg.Link.ComponentID != 190 {
		t.Errorf("identity = %d/%d, want 255/190", cfg.Link.SystemID, cfg.Link.ComponentID)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestFullConfig(t *testing.T) {
	cfg, err := Parse(`
[transport]
kind = "serial"
device = "/dev/ttyACM0"
baud = 57600

[link]
force_protocol = "mavlink2"
heartbeat_grace = "2s"
probe_window = "1s"
system_id = 250

[log]
level = "debug"
format = "json"
file = "/var/log/gclink.log"

[gateway]
enabled = true
addr = ":9000"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Transport.Device != "/dev/ttyACM0" || cfg.Transport.Baud != 57600 {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Link.ForceProtocol != "mavlink2" || cfg.Link.HeartbeatGrace.Duration != 2*time.Second {
		t.Errorf("link = %+v", cfg.Link)
	}
	if cfg.Link.SystemID != 250 {
		t.Errorf("system_id = %d, want 250", cfg.Link.SystemID)
	}
	if !cfg.Gateway.Enabled || cfg.Gateway.Addr != ":9000" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing serial device", `
[transport]
kind = "serial"
`},
		{"missing tcp addr", `
[transport]
kind = "tcp"
`},
		{"unknown transport kind", `
[transport]
kind = "carrier-pigeon"
`},
		{"unknown force protocol", `
[transport]
kind = "tcp"
addr = "x:1"
[link]
force_protocol = "nmea"
`},
		{"system id out of range", `
[transport]
kind = "tcp"
addr = "x:1"
[link]
system_id = 300
`},
		{"bad log format", `
[transport]
kind = "tcp"
addr = "x:1"
[log]
format = "xml"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			if !errors.Is(err, errors.ErrConfigValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	_, err := Parse(`transport = not toml`)
	if !errors.Is(err, errors.ErrConfigParse) {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gclink.toml")
	data := `
[transport]
kind = "udp"
addr = "127.0.0.1:14550"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Kind != "udp" || cfg.Transport.Addr != "127.0.0.1:14550" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
}
