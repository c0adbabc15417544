package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqttscope.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Buffers BufferConfig  `yaml:"buffers"`
	Ops     OpsConfig     `yaml:"ops"`
	Logging LoggingConfig `yaml:"logging"`
}

// Settings is the runtime-replaceable subset of the configuration: everything
// the engine re-reads when the caller swaps settings at runtime. Replacing
// settings re-evaluates buffer budgets immediately; the broker section only
// takes effect on the next connection attempt.
type Settings struct {
	Broker  BrokerConfig `yaml:"broker"`
	Buffers BufferConfig `yaml:"buffers"`
}

// Settings extracts the runtime-replaceable subset of the configuration.
func (c *Config) Settings() Settings {
	return Settings{
		Broker:  c.Broker,
		Buffers: c.Buffers,
	}
}

// Authentication modes accepted in broker.auth.mode.
const (
	AuthModeAnonymous = "anonymous"
	AuthModeUserPass  = "userpass"
	AuthModeEnhanced  = "enhanced"
)

// BrokerConfig contains MQTT broker connection settings.
type BrokerConfig struct {
	Host          string          `yaml:"host"`
	Port          int             `yaml:"port"`
	ClientID      string          `yaml:"client_id"`
	KeepAlive     int             `yaml:"keep_alive"`
	CleanSession  bool            `yaml:"clean_session"`
	SessionExpiry *uint32         `yaml:"session_expiry,omitempty"`
	TLS           BrokerTLSConfig `yaml:"tls"`
	Auth          AuthConfig      `yaml:"auth"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
}

// Address returns the broker endpoint in host:port form.
func (b BrokerConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// BrokerTLSConfig contains TLS settings for the broker connection.
type BrokerTLSConfig struct {
	Enabled            bool `yaml:"enabled"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AuthConfig contains MQTT authentication settings.
//
// Mode selects between anonymous, userpass (username/password) and enhanced
// (MQTT v5 extended authentication). Method and Data are only consulted in
// enhanced mode.
type AuthConfig struct {
	Mode     string `yaml:"mode"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Method   string `yaml:"method"`
	Data     string `yaml:"data"`
}

// ReconnectConfig contains reconnection settings for unexpected connection loss.
//
// The wait before the Nth reconnect attempt is min(max_delay, initial_delay*N)
// seconds. MaxAttempts of 0 means retry without limit.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// GetInitialDelay returns the initial reconnect delay as a Duration.
func (r ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect delay cap as a Duration.
func (r ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(r.MaxDelay) * time.Second
}

// BufferConfig contains per-topic buffer budget settings.
type BufferConfig struct {
	DefaultSize int64        `yaml:"default_size"`
	Rules       []BufferRule `yaml:"rules"`
}

// BufferRule binds a topic filter (wildcards allowed) to a byte budget for
// every topic the filter matches.
type BufferRule struct {
	Filter   string `yaml:"filter"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// OpsConfig contains the operational HTTP server settings (health, metrics).
type OpsConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts OpsTimeoutConfig `yaml:"timeouts"`
}

// OpsTimeoutConfig contains HTTP timeout settings in seconds.
type OpsTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// GetReadTimeout returns the ops read timeout as a Duration.
func (o OpsConfig) GetReadTimeout() time.Duration {
	return time.Duration(o.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the ops write timeout as a Duration.
func (o OpsConfig) GetWriteTimeout() time.Duration {
	return time.Duration(o.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the ops idle timeout as a Duration.
func (o OpsConfig) GetIdleTimeout() time.Duration {
	return time.Duration(o.Timeouts.Idle) * time.Second
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
// Environment variables follow the pattern: MQTTSCOPE_SECTION_KEY
// For example: MQTTSCOPE_BROKER_HOST, MQTTSCOPE_AUTH_PASSWORD
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
		Broker: BrokerConfig{
			Host:         "localhost",
			Port:         1883,
			KeepAlive:    60,
			CleanSession: true,
			Auth: AuthConfig{
				Mode: AuthModeAnonymous,
			},
			Reconnect: ReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     30,
				MaxAttempts:  0,
			},
		},
		Buffers: BufferConfig{
			DefaultSize: 1024 * 1024,
		},
		Ops: OpsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9090,
			Timeouts: OpsTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
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
// Environment variables follow the pattern: MQTTSCOPE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("MQTTSCOPE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MQTTSCOPE_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	// Auth (credentials should come from the environment, not the file)
	if v := os.Getenv("MQTTSCOPE_AUTH_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("MQTTSCOPE_AUTH_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("MQTTSCOPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Wildcard placement inside buffer rule filters is deliberately not checked
// here: an unmatchable filter is rejected during routing and must not abort
// startup.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Broker validation
	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.KeepAlive < 0 || c.Broker.KeepAlive > 65535 {
		errs = append(errs, "broker.keep_alive must be between 0 and 65535 seconds")
	}

	switch c.Broker.Auth.Mode {
	case AuthModeAnonymous:
	case AuthModeUserPass:
		if c.Broker.Auth.Username == "" {
			errs = append(errs, "broker.auth.username is required in userpass mode")
		}
	case AuthModeEnhanced:
		if c.Broker.Auth.Method == "" {
			errs = append(errs, "broker.auth.method is required in enhanced mode")
		}
	default:
		errs = append(errs, "broker.auth.mode must be anonymous, userpass, or enhanced")
	}

	// Reconnect validation
	if c.Broker.Reconnect.InitialDelay < 1 {
		errs = append(errs, "broker.reconnect.initial_delay must be at least 1 second")
	}
	if c.Broker.Reconnect.MaxDelay < c.Broker.Reconnect.InitialDelay {
		errs = append(errs, "broker.reconnect.max_delay must not be below initial_delay")
	}
	if c.Broker.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "broker.reconnect.max_attempts must not be negative")
	}

	// Buffer validation
	if c.Buffers.DefaultSize < 1 {
		errs = append(errs, "buffers.default_size must be positive")
	}
	for i, rule := range c.Buffers.Rules {
		if rule.Filter == "" {
			errs = append(errs, fmt.Sprintf("buffers.rules[%d].filter is required", i))
		}
		if rule.MaxBytes < 1 {
			errs = append(errs, fmt.Sprintf("buffers.rules[%d].max_bytes must be positive", i))
		}
	}

	// Ops validation
	if c.Ops.Enabled {
		if c.Ops.Port < 1 || c.Ops.Port > 65535 {
			errs = append(errs, "ops.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
