package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Unify Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Registry  RegistryConfig  `yaml:"registry"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Cache     CacheConfig     `yaml:"cache"`
	Platforms PlatformsConfig `yaml:"platforms"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServiceConfig contains instance-level information.
type ServiceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// RegistryConfig contains device registry settings.
type RegistryConfig struct {
	// SnapshotPath is where the registry persists its device catalogue.
	// Empty disables persistence.
	SnapshotPath string `yaml:"snapshot_path"`

	// AutosaveInterval is how often the snapshot is rewritten, in
	// seconds. 0 disables autosave (snapshot still written on shutdown).
	AutosaveInterval int `yaml:"autosave_interval"`

	// ResolveThreshold is the minimum fuzzy-match confidence (0-1]
	// accepted when resolving free-text device names.
	ResolveThreshold float64 `yaml:"resolve_threshold"`
}

// ExecutorConfig contains command retry policy settings.
type ExecutorConfig struct {
	Retries        int     `yaml:"retries"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	BackoffBaseMS  int     `yaml:"backoff_base_ms"`
	Jitter         float64 `yaml:"jitter"`

	// BatchParallelism is the in-flight window for parallel batches.
	BatchParallelism int `yaml:"batch_parallelism"`
}

// CacheConfig contains device state cache settings.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

// PlatformsConfig contains per-vendor adapter settings.
type PlatformsConfig struct {
	Zigbee ZigbeeConfig `yaml:"zigbee"`
	Hue    HueConfig    `yaml:"hue"`
}

// ZigbeeConfig contains zigbee2mqtt adapter settings.
type ZigbeeConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseTopic is the zigbee2mqtt topic root. Default: "zigbee2mqtt".
	BaseTopic string `yaml:"base_topic"`
}

// HueConfig contains Hue bridge adapter settings.
type HueConfig struct {
	Enabled bool `yaml:"enabled"`

	// BridgeURL is the base URL of the bridge, e.g. "http://192.168.1.2".
	BridgeURL string `yaml:"bridge_url"`

	// Username is the bridge application key.
	Username string `yaml:"username"`

	// TimeoutSeconds bounds each bridge HTTP request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: UNIFY_SECTION_KEY
// For example: UNIFY_MQTT_HOST, UNIFY_HUE_BRIDGE_URL
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
		Service: ServiceConfig{
			ID:       "unify-001",
			Name:     "Unify Core",
			Timezone: "UTC",
		},
		Registry: RegistryConfig{
			SnapshotPath:     "./data/devices.json",
			AutosaveInterval: 300,
			ResolveThreshold: 0.6,
		},
		Executor: ExecutorConfig{
			Retries:          3,
			TimeoutSeconds:   10,
			BackoffBaseMS:    1000,
			Jitter:           0.2,
			BatchParallelism: 4,
		},
		Cache: CacheConfig{
			TTLSeconds: 30,
			MaxEntries: 1024,
		},
		Platforms: PlatformsConfig{
			Zigbee: ZigbeeConfig{
				BaseTopic: "zigbee2mqtt",
			},
			Hue: HueConfig{
				TimeoutSeconds: 5,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "unify-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UNIFY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Registry
	if v := os.Getenv("UNIFY_REGISTRY_SNAPSHOT_PATH"); v != "" {
		cfg.Registry.SnapshotPath = v
	}

	// MQTT
	if v := os.Getenv("UNIFY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UNIFY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UNIFY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Hue bridge
	if v := os.Getenv("UNIFY_HUE_BRIDGE_URL"); v != "" {
		cfg.Platforms.Hue.BridgeURL = v
	}
	if v := os.Getenv("UNIFY_HUE_USERNAME"); v != "" {
		cfg.Platforms.Hue.Username = v
	}

	// API
	if v := os.Getenv("UNIFY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("UNIFY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("UNIFY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("UNIFY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Service validation
	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	// Registry validation
	if t := c.Registry.ResolveThreshold; t <= 0 || t > 1 {
		errs = append(errs, "registry.resolve_threshold must be in (0, 1]")
	}

	// Executor validation
	if c.Executor.Retries < 0 {
		errs = append(errs, "executor.retries must not be negative")
	}
	if c.Executor.Jitter < 0 || c.Executor.Jitter >= 1 {
		errs = append(errs, "executor.jitter must be in [0, 1)")
	}

	// Platform validation
	if c.Platforms.Hue.Enabled && c.Platforms.Hue.BridgeURL == "" {
		errs = append(errs, "platforms.hue.bridge_url is required when the hue adapter is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - JWT secret is REQUIRED
	// The API fronts physical devices (locks, shades), so token forgery
	// is a physical-security problem, not just a data one.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set UNIFY_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetExecutorTimeout returns the per-attempt command timeout as a Duration.
func (c *Config) GetExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSeconds) * time.Second
}

// GetBackoffBase returns the retry backoff base as a Duration.
func (c *Config) GetBackoffBase() time.Duration {
	return time.Duration(c.Executor.BackoffBaseMS) * time.Millisecond
}

// GetCacheTTL returns the state cache TTL as a Duration.
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// GetAutosaveInterval returns the registry autosave interval as a Duration.
func (c *Config) GetAutosaveInterval() time.Duration {
	return time.Duration(c.Registry.AutosaveInterval) * time.Second
}

// GetHueTimeout returns the Hue bridge request timeout as a Duration.
func (c *Config) GetHueTimeout() time.Duration {
	return time.Duration(c.Platforms.Hue.TimeoutSeconds) * time.Second
}
