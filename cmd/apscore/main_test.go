package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("APSCORE_CONFIG")
	defer os.Setenv("APSCORE_CONFIG", originalEnv)

	os.Setenv("APSCORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is invalid.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
factory:
  id: test-factory

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

templates:
  path: configs/templates.yaml

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 60

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	originalEnv := os.Getenv("APSCORE_CONFIG")
	defer os.Setenv("APSCORE_CONFIG", originalEnv)
	os.Setenv("APSCORE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("APSCORE_CONFIG")
	defer os.Setenv("APSCORE_CONFIG", originalEnv)

	os.Setenv("APSCORE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	os.Setenv("APSCORE_CONFIG", "/etc/apscore/config.yaml")
	if got := getConfigPath(); got != "/etc/apscore/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}
