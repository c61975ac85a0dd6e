package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SberGate.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// Credentials deliberately do not fail validation when absent: the gateway keeps
// running in a degraded state so configuration can be corrected without a crash
// loop. Missing credentials are reported at error severity by the caller.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Cloud     CloudConfig     `yaml:"cloud"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HubConfig contains connection settings for the home-automation hub
// (REST API plus WebSocket event stream).
type HubConfig struct {
	// APIURL is the base URL of the hub HTTP API. The WebSocket endpoint
	// is derived from it (http→ws, https→wss, path /api/websocket).
	APIURL string `yaml:"api_url"`

	// APIToken is the long-lived bearer token for the hub API.
	APIToken string `yaml:"api_token"`

	// ReconnectDelay is the fixed delay between WebSocket reconnect attempts.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// CommandTimeout bounds outbound REST command calls so a slow hub
	// cannot stall event processing.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// CloudConfig contains settings for the vendor cloud side.
type CloudConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	// HTTPAPIEndpoint is the cloud REST endpoint used to bootstrap the
	// category/feature schema and model list. Normally discovered at runtime
	// via the global config topic and persisted to the options file; a value
	// here acts as a static override.
	HTTPAPIEndpoint string `yaml:"http_api_endpoint"`
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

	// TLSInsecure disables certificate verification. The vendor broker
	// presents a certificate from a private CA, so this defaults to true
	// when TLS is enabled.
	TLSInsecure bool `yaml:"tls_insecure"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// The login also forms the account segment of the topic namespace.
type MQTTAuthConfig struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	StaticDir string           `yaml:"static_dir"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// StorageConfig contains paths for the gateway's flat-file state.
type StorageConfig struct {
	// DevicesFile is the registry snapshot (device id → record).
	DevicesFile string `yaml:"devices_file"`

	// CategoriesFile caches the category/feature schema fetched from the cloud.
	CategoriesFile string `yaml:"categories_file"`

	// ModelsFile caches the cloud model list.
	ModelsFile string `yaml:"models_file"`

	// OptionsFile holds runtime-discovered options, rewritten only when a
	// value actually changes.
	OptionsFile string `yaml:"options_file"`
}

// TelemetryConfig contains InfluxDB settings for the optional sensor
// measurement sink.
type TelemetryConfig struct {
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SBERGATE_SECTION_KEY
// For example: SBERGATE_HUB_API_TOKEN, SBERGATE_CLOUD_MQTT_LOGIN
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
		Hub: HubConfig{
			APIURL:         "http://supervisor/core",
			ReconnectDelay: 5 * time.Second,
			CommandTimeout: 10 * time.Second,
		},
		Cloud: CloudConfig{
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:        "mqtt-companion.salutehome.ru",
					Port:        8883,
					TLS:         true,
					TLSInsecure: true,
					ClientID:    "sbergate",
				},
				QoS: 0,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9123,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			StaticDir: "./ui",
		},
		Storage: StorageConfig{
			DevicesFile:    "./data/devices.json",
			CategoriesFile: "./data/categories.json",
			ModelsFile:     "./data/models.json",
			OptionsFile:    "./data/options.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SBERGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("SBERGATE_HUB_API_URL"); v != "" {
		cfg.Hub.APIURL = v
	}
	if v := os.Getenv("SBERGATE_HUB_API_TOKEN"); v != "" {
		cfg.Hub.APIToken = v
	}

	// Cloud MQTT
	if v := os.Getenv("SBERGATE_CLOUD_MQTT_HOST"); v != "" {
		cfg.Cloud.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SBERGATE_CLOUD_MQTT_LOGIN"); v != "" {
		cfg.Cloud.MQTT.Auth.Login = v
	}
	if v := os.Getenv("SBERGATE_CLOUD_MQTT_PASSWORD"); v != "" {
		cfg.Cloud.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SBERGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telemetry
	if v := os.Getenv("SBERGATE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for structural errors.
//
// Missing credentials are not validation failures: the gateway starts
// degraded and reports them instead of refusing to run.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Storage validation
	if c.Storage.DevicesFile == "" {
		errs = append(errs, "storage.devices_file is required")
	}
	if c.Storage.OptionsFile == "" {
		errs = append(errs, "storage.options_file is required")
	}

	// MQTT validation
	if c.Cloud.MQTT.QoS < 0 || c.Cloud.MQTT.QoS > 2 {
		errs = append(errs, "cloud.mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Hub validation
	if c.Hub.ReconnectDelay <= 0 {
		errs = append(errs, "hub.reconnect_delay must be positive")
	}
	if c.Hub.CommandTimeout <= 0 {
		errs = append(errs, "hub.command_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HasHubCredentials reports whether a hub API token is configured.
func (c *Config) HasHubCredentials() bool {
	return c.Hub.APIToken != ""
}

// HasCloudCredentials reports whether cloud MQTT credentials are configured.
func (c *Config) HasCloudCredentials() bool {
	return c.Cloud.MQTT.Auth.Login != "" && c.Cloud.MQTT.Auth.Password != ""
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
