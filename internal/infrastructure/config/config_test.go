package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "factory:\n  id: aps-test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT host = %q, want localhost", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Orders.PendingTimeoutS != 60 {
		t.Errorf("pending timeout = %d, want 60", cfg.Orders.PendingTimeoutS)
	}
	if cfg.Validation.Strict {
		t.Error("strict validation should default to false")
	}
	if got := cfg.PendingTimeout(); got != 60*time.Second {
		t.Errorf("PendingTimeout() = %v, want 60s", got)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
factory:
  id: aps-test
mqtt:
  broker:
    host: broker.factory.local
    port: 8883
    tls: true
orders:
  pending_timeout_s: 30
  completed_states: [FINISHED]
  error_states: [ERROR]
validation:
  strict: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.factory.local" {
		t.Errorf("MQTT host = %q", cfg.MQTT.Broker.Host)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("TLS should be enabled")
	}
	if cfg.Orders.PendingTimeoutS != 30 {
		t.Errorf("pending timeout = %d, want 30", cfg.Orders.PendingTimeoutS)
	}
	if !cfg.Validation.Strict {
		t.Error("strict validation should be enabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "factory:\n  id: aps-test\n")

	t.Setenv("APSCORE_MQTT_HOST", "env-broker")
	t.Setenv("APSCORE_MQTT_PORT", "2883")
	t.Setenv("APSCORE_TEMPLATES_PATH", "/etc/apscore/templates.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT host = %q, want env-broker", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 2883 {
		t.Errorf("MQTT port = %d, want 2883", cfg.MQTT.Broker.Port)
	}
	if cfg.Templates.Path != "/etc/apscore/templates.yaml" {
		t.Errorf("templates path = %q", cfg.Templates.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "mqtt: [not a map")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(_ *Config) {},
			wantErr: "",
		},
		{
			name:    "missing factory id",
			mutate:  func(c *Config) { c.Factory.ID = "" },
			wantErr: "factory.id",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "missing templates path",
			mutate:  func(c *Config) { c.Templates.Path = "" },
			wantErr: "templates.path",
		},
		{
			name:    "zero pending timeout",
			mutate:  func(c *Config) { c.Orders.PendingTimeoutS = 0 },
			wantErr: "pending_timeout_s",
		},
		{
			name:    "empty completed states",
			mutate:  func(c *Config) { c.Orders.CompletedStates = nil },
			wantErr: "completed_states",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
