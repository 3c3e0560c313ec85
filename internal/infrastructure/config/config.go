package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for VRLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// RelayConfig contains the device-facing WebSocket relay settings.
type RelayConfig struct {
	// Host is the listen address for device connections.
	// Devices connect from anywhere, so the default binds all interfaces.
	Host string `yaml:"host"`

	// Port is the WebSocket listen port.
	Port int `yaml:"port"`

	// MaxMessageSize is the largest accepted inbound frame in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// PingInterval is how often protocol pings are sent (seconds).
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is how long to wait for a pong before the connection
	// is considered dead (seconds).
	PongTimeout int `yaml:"pong_timeout"`

	// WriteTimeout bounds a single frame write (seconds).
	WriteTimeout int `yaml:"write_timeout"`

	// RequestTimeout is the default deadline for request/reply exchanges
	// such as library requests (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// BindRetryDelay is how long to wait before the single listener bind
	// retry when the port is still held by a previous instance (seconds).
	BindRetryDelay int `yaml:"bind_retry_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the command-surface HTTP API settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTConfig contains settings for the optional lifecycle event publisher.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings for the command-surface API.
type SecurityConfig struct {
	// APIToken is a static bearer token required by the HTTP API when set.
	// The chat bot is the only intended client; an empty value disables
	// the check (development only).
	APIToken string `yaml:"api_token"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VRLINK_SECTION_KEY
// For example: VRLINK_DATABASE_PATH, VRLINK_RELAY_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
			WriteTimeout:   10,
			RequestTimeout: 8,
			BindRetryDelay: 5,
		},
		Database: DatabaseConfig{
			Path:        "./data/links.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vrlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
// Environment variables follow the pattern: VRLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Relay
	if v := os.Getenv("VRLINK_RELAY_HOST"); v != "" {
		cfg.Relay.Host = v
	}
	if v := os.Getenv("VRLINK_RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Port = port
		}
	}

	// Database
	if v := os.Getenv("VRLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("VRLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("VRLINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("VRLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VRLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VRLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VRLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("VRLINK_API_TOKEN"); v != "" {
		cfg.Security.APIToken = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 1 and 65535")
	}
	if c.Relay.RequestTimeout < 1 {
		errs = append(errs, "relay.request_timeout must be at least 1 second")
	}
	if c.Relay.MaxMessageSize < 1024 {
		errs = append(errs, "relay.max_message_size must be at least 1024 bytes")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Port == c.Relay.Port {
		errs = append(errs, "api.port must differ from relay.port")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set VRLINK_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPingInterval returns the relay ping interval as a Duration.
func (c *RelayConfig) GetPingInterval() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// GetPongTimeout returns the relay pong timeout as a Duration.
func (c *RelayConfig) GetPongTimeout() time.Duration {
	return time.Duration(c.PongTimeout) * time.Second
}

// GetWriteTimeout returns the relay write timeout as a Duration.
func (c *RelayConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// GetRequestTimeout returns the default request/reply deadline as a Duration.
func (c *RelayConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetBindRetryDelay returns the listener bind retry delay as a Duration.
func (c *RelayConfig) GetBindRetryDelay() time.Duration {
	return time.Duration(c.BindRetryDelay) * time.Second
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
