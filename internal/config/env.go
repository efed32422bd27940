package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// EnvFile is loaded, when present, before the environment is read.
const EnvFile = ".env.local"

// Overrides are settings taken from the environment. Empty or zero values
// leave the file value alone.
type Overrides struct {
	RealmAddress string `env:"REALMLINK_REALM_ADDRESS"`
	PlayerGUID   string `env:"REALMLINK_PLAYER_GUID"`
	APIPort      int    `env:"REALMLINK_API_PORT"`
	LogLevel     string `env:"REALMLINK_LOG_LEVEL"`

	// MQTTEnabled is a strconv.ParseBool string so "false" can switch
	// telemetry off.
	MQTTEnabled string `env:"REALMLINK_MQTT_ENABLED"`
}

// LoadOverrides reads EnvFile, if any, and then the process environment.
func LoadOverrides(ctx context.Context) (*Overrides, error) {
	if err := godotenv.Load(EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", EnvFile, err)
	}

	var o Overrides
	if err := envconfig.Process(ctx, &o); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &o, nil
}

// Apply copies every set override into cfg. Overrides are not saved unless
// the caller saves cfg afterwards.
func (o *Overrides) Apply(cfg *Config) error {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if o.RealmAddress != "" {
		cfg.Realm.Address = o.RealmAddress
	}
	if o.PlayerGUID != "" {
		cfg.Realm.PlayerGUID = o.PlayerGUID
	}
	if o.APIPort != 0 {
		cfg.API.Port = o.APIPort
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.MQTTEnabled != "" {
		enabled, err := strconv.ParseBool(o.MQTTEnabled)
		if err != nil {
			return fmt.Errorf("REALMLINK_MQTT_ENABLED: %w", err)
		}
		cfg.MQTT.Enabled = enabled
	}
	return nil
}
