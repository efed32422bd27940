package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/energizer-project/realmlink/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	realm := cfg.GetRealm()
	validateRealm(&realm, result)
	session := cfg.GetSession()
	validateSession(&session, result)
	api := cfg.GetAPI()
	if api.Enabled {
		validatePort(api.Port, "api.port", result)
		if api.RateLimitRPS < 1 {
			result.AddWarning("api.rate_limit_rps",
				"rate limit is disabled (0 RPS), this may expose the API to abuse")
		}
		if api.Token == "" {
			result.AddWarning("api.token",
				"no API token set, control endpoints accept unauthenticated requests")
		}
	}
	mqtt := cfg.GetMQTT()
	validateMQTT(&mqtt, result)
	capture := cfg.GetCapture()
	validateCapture(&capture, result)
	health := cfg.GetHealth()
	validateHealth(&health, result)

	return result
}

func validateRealm(r *RealmConfig, result *ValidationResult) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(r.Address))
	switch {
	case strings.TrimSpace(r.Address) == "":
		result.AddError("realm.address", "world server address is required")
	case err != nil:
		result.AddError("realm.address", fmt.Sprintf("address must be host:port: %v", err))
	case host == "":
		result.AddError("realm.address", "address has no host")
	default:
		n, convErr := strconv.Atoi(port)
		if convErr != nil {
			result.AddError("realm.address", fmt.Sprintf("invalid port %q", port))
		} else if n < 1 || n > 65535 {
			result.AddError("realm.address", fmt.Sprintf("invalid port number: %d (must be 1-65535)", n))
		}
	}

	if r.PlayerGUID == "" {
		result.AddWarning("realm.player_guid", "no character GUID, targeting and guild views will not know the player")
	} else if _, err := protocol.ParseGUID(r.PlayerGUID); err != nil {
		result.AddError("realm.player_guid", err.Error())
	}

	if r.ConnectTimeoutSec < 1 {
		result.AddError("realm.connect_timeout_sec", "connect timeout must be at least 1 second")
	}
	if r.ReadTimeoutSec < 1 {
		result.AddError("realm.read_timeout_sec", "read timeout must be at least 1 second")
	}
	if r.ReconnectDelaySec < 1 {
		result.AddWarning("realm.reconnect_delay_sec", "reconnect delay under 1s may hammer the realm")
	}
}

func validateSession(s *SessionConfig, result *ValidationResult) {
	if s.CorrelationTimeoutMs < 1 {
		result.AddError("session.correlation_timeout_ms", "confirmation timeout must be positive")
	} else if s.CorrelationTimeoutMs < 100 {
		result.AddWarning("session.correlation_timeout_ms",
			"confirmation timeout under 100ms will time out on most realms")
	}
	if s.FeedBuffer < 1 {
		result.AddError("session.feed_buffer", "feed buffer must be at least 1")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && m.CAFile != "" {
		if _, err := os.Stat(m.CAFile); os.IsNotExist(err) {
			result.AddWarning("mqtt.ca_file", fmt.Sprintf("file does not exist: %s", m.CAFile))
		}
	}
}

func validateCapture(c *CaptureConfig, result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		result.AddError("capture.database_path", "capture database path is required when enabled")
	} else if dir := filepath.Dir(c.DatabasePath); dir != "." {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			result.AddError("capture.database_path", fmt.Sprintf("%s is not a directory", dir))
		}
	}
	if c.RetentionDays < 1 {
		result.AddError("capture.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", c.CleanupTime); err != nil {
		result.AddError("capture.cleanup_time", fmt.Sprintf("cleanup time must be HH:MM, got %q", c.CleanupTime))
	}
}

func validateHealth(h *HealthConfig, result *ValidationResult) {
	if h.PingIntervalSec > 0 && h.PingIntervalSec < 5 {
		result.AddWarning("health.ping_interval_sec",
			"ping interval less than 5s may cause excessive traffic")
	}
	if h.HeartbeatIntervalSec > 0 && h.HeartbeatIntervalSec < 10 {
		result.AddWarning("health.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
