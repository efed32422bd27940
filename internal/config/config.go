// Package config handles configuration loading, validation, and persistence
// for the realmlink client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
	DefaultRealmPort  = 8085
)

// Config is the root configuration structure for realmlink.
type Config struct {
	mu   sync.RWMutex
	path string

	Realm   RealmConfig   `json:"realm"`
	Session SessionConfig `json:"session"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Capture CaptureConfig `json:"capture"`
	Health  HealthConfig  `json:"health"`
	Logging LoggingConfig `json:"logging"`
}

// RealmConfig holds the world server connection settings.
type RealmConfig struct {
	Address           string `json:"address"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec"`
	ReconnectDelaySec int    `json:"reconnect_delay_sec"`
	ReadTimeoutSec    int    `json:"read_timeout_sec"`

	// PlayerGUID is the logged-in character, decimal or 0x-prefixed hex.
	PlayerGUID string `json:"player_guid"`
}

// SessionConfig tunes the facades.
type SessionConfig struct {
	CorrelationTimeoutMs int `json:"correlation_timeout_ms"`
	FeedBuffer           int `json:"feed_buffer"`
	NameCacheTTLSec      int `json:"name_cache_ttl_sec"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`

	// Token, when set, must be sent as a bearer token on /api routes
	// other than /api/public.
	Token string `json:"token"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// CaptureConfig holds the wire capture store settings.
type CaptureConfig struct {
	Enabled       bool   `json:"enabled"`
	DatabasePath  string `json:"database_path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// HealthConfig holds periodic check intervals.
type HealthConfig struct {
	PingIntervalSec      int `json:"ping_interval_sec"`
	LatencyWarnMs        int `json:"latency_warn_ms"`
	RosterRefreshSec     int `json:"roster_refresh_sec"`
	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level         string `json:"level"`
	Directory     string `json:"directory"`
	RetentionDays int    `json:"retention_days"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Realm: RealmConfig{
			Address:           fmt.Sprintf("127.0.0.1:%d", DefaultRealmPort),
			ConnectTimeoutSec: 30,
			ReconnectDelaySec: 10,
			ReadTimeoutSec:    60,
		},
		Session: SessionConfig{
			CorrelationTimeoutMs: 1000,
			FeedBuffer:           64,
			NameCacheTTLSec:      600,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "localhost",
			Port:        1883,
			TopicPrefix: "realmlink",
		},
		Capture: CaptureConfig{
			Enabled:       true,
			DatabasePath:  filepath.Join("data", "captures.db"),
			RetentionDays: 7,
			CleanupTime:   "04:00",
		},
		Health: HealthConfig{
			PingIntervalSec:      30,
			LatencyWarnMs:        500,
			RosterRefreshSec:     300,
			HeartbeatIntervalSec: 60,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Directory:     "logs",
			RetentionDays: 14,
		},
	}
}

// Load reads configuration from a JSON file, creating it with defaults
// when it does not exist.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so fields added since the file was written show up in it.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRealm returns a copy of the realm configuration.
func (c *Config) GetRealm() RealmConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Realm
}

// SetRealm updates the realm configuration.
func (c *Config) SetRealm(r RealmConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Realm = r
}

// GetSession returns a copy of the session configuration.
func (c *Config) GetSession() SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Session
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	api.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	return api
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetCapture returns a copy of the capture configuration.
func (c *Config) GetCapture() CaptureConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture
}

// GetHealth returns a copy of the health check configuration.
func (c *Config) GetHealth() HealthConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Health
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// section returns a pointer to the named section. Callers hold mu.
func (c *Config) section(name string) (interface{}, error) {
	switch name {
	case "realm":
		return &c.Realm, nil
	case "session":
		return &c.Session, nil
	case "api":
		return &c.API, nil
	case "mqtt":
		return &c.MQTT, nil
	case "capture":
		return &c.Capture, nil
	case "health":
		return &c.Health, nil
	case "logging":
		return &c.Logging, nil
	}
	return nil, fmt.Errorf("unknown config section %q", name)
}

// fields renders a section as a map keyed by JSON field name.
func fields(section, key string, target interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read field %s.%s: %w", section, key, err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to read field %s.%s: %w", section, key, err)
	}
	if _, ok := m[key]; !ok {
		return nil, fmt.Errorf("unknown config field %s.%s", section, key)
	}
	return m, nil
}

// Field returns one field of a section by its JSON key, in its JSON
// form: numbers come back as float64.
func (c *Config) Field(section, key string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	target, err := c.section(section)
	if err != nil {
		return nil, err
	}
	m, err := fields(section, key, target)
	if err != nil {
		return nil, err
	}
	return m[key], nil
}

// UpdateField sets one field of a section by its JSON key, for example
// UpdateField("session", "feed_buffer", 128).
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.section(section)
	if err != nil {
		return err
	}

	// Round-trip the section through a map so the key matches JSON tags.
	m, err := fields(section, key, target)
	if err != nil {
		return err
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, target); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Realm.PlayerGUID == ""
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ConnectTimeout returns the realm dial timeout.
func (r RealmConfig) ConnectTimeout() time.Duration { return seconds(r.ConnectTimeoutSec) }

// ReconnectDelay returns the pause between realm sessions.
func (r RealmConfig) ReconnectDelay() time.Duration { return seconds(r.ReconnectDelaySec) }

// ReadTimeout returns the realm read deadline.
func (r RealmConfig) ReadTimeout() time.Duration { return seconds(r.ReadTimeoutSec) }

// CorrelationTimeout returns how long correlated flows wait.
func (s SessionConfig) CorrelationTimeout() time.Duration {
	return time.Duration(s.CorrelationTimeoutMs) * time.Millisecond
}

// NameCacheTTL returns how long resolved names stay cached.
func (s SessionConfig) NameCacheTTL() time.Duration { return seconds(s.NameCacheTTLSec) }
