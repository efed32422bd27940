package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/util"
)

// loadConfig brings up logging, loads the config and its environment
// overrides, and validates the result. With interactive set, an invalid
// first-run config goes through the setup wizard. The returned closer is
// the log file.
func loadConfig(ctx context.Context, opts *rootOptions, interactive bool) (*config.Config, io.Closer, error) {
	// Defaults first; reconfigured once the config is loaded.
	logFile, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	overrides, err := config.LoadOverrides(ctx)
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	if err := overrides.Apply(cfg); err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("invalid environment override: %w", err)
	}

	logging := cfg.GetLogging()
	reconfigured, err := util.InitLogger(util.LogConfig{
		Level:         logging.Level,
		Directory:     logging.Directory,
		RetentionDays: logging.RetentionDays,
		Console:       true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	} else {
		logFile.Close()
		logFile = reconfigured
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if validation.IsValid() {
		return cfg, logFile, nil
	}
	for _, e := range validation.Errors {
		log.Error().Str("field", e.Field).Msg(e.Message)
	}

	if !interactive || !cfg.IsFirstRun() {
		logFile.Close()
		return nil, nil, fmt.Errorf("configuration validation failed, please fix the errors above")
	}

	log.Info().Msg("first run detected, launching setup wizard")
	if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("setup wizard failed: %w", err)
	}
	return cfg, logFile, nil
}
