package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration, reading
// answers from in and writing prompts to out.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	p := prompter{r: reader, w: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║         realmlink - First Run Setup          ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	cfg.mu.Lock()
	fmt.Fprintln(out, "── Realm ──")
	cfg.Realm.Address = p.str("World server address (host:port)", cfg.Realm.Address)
	cfg.Realm.PlayerGUID = p.str("Character GUID (decimal or 0x hex)", cfg.Realm.PlayerGUID)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Session ──")
	cfg.Session.CorrelationTimeoutMs = p.int("Confirmation timeout (ms)", cfg.Session.CorrelationTimeoutMs)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── REST API ──")
	cfg.API.Enabled = p.bool("Enable REST API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = p.int("REST API port", cfg.API.Port)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Capture ──")
	cfg.Capture.Enabled = p.bool("Record wire captures", cfg.Capture.Enabled)
	if cfg.Capture.Enabled {
		cfg.Capture.DatabasePath = p.str("Capture database path", cfg.Capture.DatabasePath)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")
	cfg.MQTT.Enabled = p.bool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = p.str("Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = p.int("Broker port", cfg.MQTT.Port)
	}
	cfg.mu.Unlock()

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry := p.str("Would you like to try again? (yes/no)", "no")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg, reader, out)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved successfully!")
	fmt.Fprintln(out)
	return nil
}

type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func (p prompter) line() string {
	input, _ := p.r.ReadString('\n')
	return strings.TrimSpace(input)
}

func (p prompter) str(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.w, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(p.w, "  %s: ", prompt)
	}

	input := p.line()
	if input == "" {
		return defaultVal
	}
	return input
}

func (p prompter) int(prompt string, defaultVal int) int {
	fmt.Fprintf(p.w, "  %s [%d]: ", prompt, defaultVal)

	input := p.line()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.w, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (p prompter) bool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(p.w, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(p.line())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
