package logging

import (
	"log/slog"
	"testing"

	"github.com/apsfactory/aps-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{
			name: "json stdout",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "text stderr",
			cfg:  config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name: "unknown values fall back to defaults",
			cfg:  config.LoggingConfig{Level: "verbose", Format: "xml", Output: "syslog"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg, "test")
			if logger == nil || logger.Logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWith(t *testing.T) {
	logger := Default()
	child := logger.With("component", "intake")
	if child == nil || child.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	if child == logger {
		t.Error("With() should return a new logger")
	}
}
