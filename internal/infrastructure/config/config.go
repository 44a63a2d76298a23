package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Serial driver names accepted in bridge.driver.
const (
	DriverTermios = "termios"
	DriverGurux   = "gurux"
)

// Config is the root configuration structure for tftbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Host      HostConfig      `yaml:"host"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains the relay settings and both serial endpoints.
type BridgeConfig struct {
	// ID names this bridge instance in health topics and metrics.
	ID string `yaml:"id"`

	// Driver selects the serial implementation: "termios" or "gurux".
	Driver string `yaml:"driver"`

	// TFT is the display controller endpoint.
	TFT EndpointConfig `yaml:"tft"`

	// Firmware is the printer firmware host endpoint (e.g. /tmp/printer).
	Firmware EndpointConfig `yaml:"firmware"`

	// PollIntervalMS bounds how long an idle relay loop sleeps between
	// checks while a connection is absent. Default: 100.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// DrainTimeout is how long a ready signal waits for the previous
	// session's loops to exit (seconds). Default: 10.
	DrainTimeout int `yaml:"drain_timeout"`

	// HealthInterval is the health publishing period (seconds). Default: 30.
	HealthInterval int `yaml:"health_interval"`

	// Tap mirrors every relayed record to WebSocket subscribers.
	Tap bool `yaml:"tap"`
}

// EndpointConfig describes one serial device.
type EndpointConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Timeout is the read timeout in seconds. 0 blocks indefinitely.
	Timeout int `yaml:"timeout"`
}

// HostConfig contains settings for the host lifecycle event source.
type HostConfig struct {
	// AutoReady fires a ready signal at startup, for hosts that never
	// publish their state.
	AutoReady bool `yaml:"auto_ready"`

	// StateTopic is the MQTT topic carrying host state payloads.
	StateTopic string `yaml:"state_topic"`

	// ReadyPayloads are the payloads that start relaying.
	ReadyPayloads []string `yaml:"ready_payloads"`

	// DisconnectPayloads are the payloads that stop relaying.
	DisconnectPayloads []string `yaml:"disconnect_payloads"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetainEvents caps the journal; older rows are pruned. 0 keeps all.
	RetainEvents int `yaml:"retain_events"`
}

// MQTTConfig contains MQTT broker connection settings.
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
}

// APIConfig contains the operator HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ValidationError lists every problem found by Validate.
// Use errors.As to inspect individual problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "configuration errors: " + strings.Join(e.Problems, "; ")
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TFTBRIDGE_SECTION_KEY
// For example: TFTBRIDGE_TFT_DEVICE, TFTBRIDGE_MQTT_HOST
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

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:     "tftbridge",
			Driver: DriverTermios,
			TFT: EndpointConfig{
				Baud:    115200,
				Timeout: 1,
			},
			Firmware: EndpointConfig{
				Device:  "/tmp/printer",
				Baud:    250000,
				Timeout: 1,
			},
			PollIntervalMS: 100,
			DrainTimeout:   10,
			HealthInterval: 30,
		},
		Host: HostConfig{
			StateTopic:         "tftbridge/host/state",
			ReadyPayloads:      []string{"ready"},
			DisconnectPayloads: []string{"disconnect", "shutdown", "offline"},
		},
		Database: DatabaseConfig{
			Enabled:      true,
			Path:         "./data/tftbridge.db",
			WALMode:      true,
			BusyTimeout:  5,
			RetainEvents: 10000,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tftbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8095,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TFTBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial devices
	if v := os.Getenv("TFTBRIDGE_TFT_DEVICE"); v != "" {
		cfg.Bridge.TFT.Device = v
	}
	if v := os.Getenv("TFTBRIDGE_FIRMWARE_DEVICE"); v != "" {
		cfg.Bridge.Firmware.Device = v
	}

	// Database
	if v := os.Getenv("TFTBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TFTBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TFTBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TFTBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TFTBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("TFTBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: *ValidationError describing every problem, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	switch c.Bridge.Driver {
	case DriverTermios, DriverGurux:
	default:
		errs = append(errs, fmt.Sprintf("bridge.driver must be %q or %q", DriverTermios, DriverGurux))
	}
	errs = append(errs, c.Bridge.TFT.problems("bridge.tft")...)
	errs = append(errs, c.Bridge.Firmware.problems("bridge.firmware")...)
	if c.Bridge.TFT.Device != "" && c.Bridge.TFT.Device == c.Bridge.Firmware.Device {
		errs = append(errs, "bridge.tft.device and bridge.firmware.device must differ")
	}
	if c.Bridge.PollIntervalMS <= 0 {
		errs = append(errs, "bridge.poll_interval_ms must be positive")
	}
	if c.Bridge.DrainTimeout < 0 {
		errs = append(errs, "bridge.drain_timeout must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.Host.StateTopic == "" {
			errs = append(errs, "host.state_topic is required when mqtt is enabled")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetainEvents < 0 {
		errs = append(errs, "database.retain_events must not be negative")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}

	return nil
}

// problems validates one endpoint: path non-empty, baud positive, timeout non-negative.
func (e EndpointConfig) problems(prefix string) []string {
	var errs []string
	if e.Device == "" {
		errs = append(errs, prefix+".device is required")
	}
	if e.Baud <= 0 {
		errs = append(errs, prefix+".baud must be positive")
	}
	if e.Timeout < 0 {
		errs = append(errs, prefix+".timeout must not be negative")
	}
	return errs
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetPollInterval returns the idle poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Bridge.PollIntervalMS) * time.Millisecond
}

// GetDrainTimeout returns the drain timeout as a Duration.
func (c *Config) GetDrainTimeout() time.Duration {
	return time.Duration(c.Bridge.DrainTimeout) * time.Second
}

// GetHealthInterval returns the health publishing interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
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
