package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for APS Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Factory    FactoryConfig    `yaml:"factory"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Orders     OrdersConfig     `yaml:"orders"`
	Validation ValidationConfig `yaml:"validation"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FactoryConfig contains factory-installation identification.
type FactoryConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TemplatesConfig contains topic-template source settings.
type TemplatesConfig struct {
	// Path is the YAML template source document, reloadable at runtime.
	Path string `yaml:"path"`
}

// OrdersConfig contains order-tracking settings.
type OrdersConfig struct {
	// PendingTimeoutS is how long an order may wait for a controller
	// acknowledgement before being marked ERROR (seconds).
	PendingTimeoutS int `yaml:"pending_timeout_s"`

	// LifetimeTimeoutS is the overall order lifetime limit (seconds).
	// 0 disables the lifetime timeout.
	LifetimeTimeoutS int `yaml:"lifetime_timeout_s"`

	// CompletedStates are the state tokens that mark an active order complete.
	// Matched as substrings of free-form module state strings.
	CompletedStates []string `yaml:"completed_states"`

	// ErrorStates are the state tokens that mark an active order failed.
	ErrorStates []string `yaml:"error_states"`
}

// ValidationConfig contains payload validation settings.
type ValidationConfig struct {
	// Strict rejects payload fields that are not declared in the template.
	Strict bool `yaml:"strict"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP boundary API settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty origin list allows all origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event-stream settings.
type WebSocketConfig struct {
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	MaxMessageSize int `yaml:"max_message_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: APSCORE_SECTION_KEY
// For example: APSCORE_MQTT_HOST, APSCORE_TEMPLATES_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Factory: FactoryConfig{
			ID:   "aps-001",
			Name: "APS Model Factory",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "aps-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Templates: TemplatesConfig{
			Path: "configs/templates.yaml",
		},
		Orders: OrdersConfig{
			PendingTimeoutS:  60,
			LifetimeTimeoutS: 0,
			CompletedStates:  []string{"FINISHED", "COMPLETED"},
			ErrorStates:      []string{"ERROR", "FAULT"},
		},
		Database: DatabaseConfig{
			Path:        "./data/apscore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				PingInterval:   30,
				PongTimeout:    60,
				MaxMessageSize: 65536,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: APSCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("APSCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("APSCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("APSCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("APSCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Templates
	if v := os.Getenv("APSCORE_TEMPLATES_PATH"); v != "" {
		cfg.Templates.Path = v
	}

	// Database
	if v := os.Getenv("APSCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("APSCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("APSCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Factory.ID == "" {
		errs = append(errs, "factory.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.Templates.Path == "" {
		errs = append(errs, "templates.path is required")
	}

	if c.Orders.PendingTimeoutS < 1 {
		errs = append(errs, "orders.pending_timeout_s must be at least 1")
	}
	if len(c.Orders.CompletedStates) == 0 {
		errs = append(errs, "orders.completed_states must not be empty")
	}
	if len(c.Orders.ErrorStates) == 0 {
		errs = append(errs, "orders.error_states must not be empty")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PendingTimeout returns the controller-ack timeout as a Duration.
func (c *Config) PendingTimeout() time.Duration {
	return time.Duration(c.Orders.PendingTimeoutS) * time.Second
}

// LifetimeTimeout returns the overall order lifetime limit as a Duration.
// Zero means no limit.
func (c *Config) LifetimeTimeout() time.Duration {
	return time.Duration(c.Orders.LifetimeTimeoutS) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
