package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/realmlink/internal/api"
	"github.com/energizer-project/realmlink/internal/cli"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/health"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/scheduler"
	"github.com/energizer-project/realmlink/internal/subsystem"
	"github.com/energizer-project/realmlink/internal/telemetry"
	"github.com/energizer-project/realmlink/internal/util"
)

const shutdownTimeout = 30 * time.Second

type runOptions struct {
	noCLI bool
}

func runCmd(opts *rootOptions) *cobra.Command {
	var ro runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the realm and serve the API, telemetry and CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, ro)
		},
	}
	cmd.Flags().BoolVar(&ro.noCLI, "no-cli", false, "Do not read commands from stdin")
	return cmd
}

func run(ctx context.Context, opts *rootOptions, ro runOptions) error {
	fmt.Printf(Banner, version)
	fmt.Println()

	cfg, logFile, err := loadConfig(ctx, opts, !ro.noCLI)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting realmlink")

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	realm := cfg.GetRealm()
	session := cfg.GetSession()
	player, err := protocol.ParseGUID(realm.PlayerGUID)
	if err != nil {
		return fmt.Errorf("realm.player_guid: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Core: bus, metrics, the realm connection and the facades on top.
	eventBus := events.NewEventBus(util.ComponentLogger("events"))
	m := metrics.New()

	client := network.NewClient(network.ClientConfig{
		Address:        realm.Address,
		ConnectTimeout: realm.ConnectTimeout(),
		ReadTimeout:    realm.ReadTimeout(),
		ReconnectDelay: realm.ReconnectDelay(),
	}, eventBus, m, util.ComponentLogger("network"))
	defer client.Close()

	r := router.New(client, util.ComponentLogger("router"), m)
	set := facade.NewSet(r, facade.SetConfig{
		Player:  player,
		NameTTL: session.NameCacheTTL(),
	}, subsystem.Options{
		Logger:             util.ComponentLogger("facade"),
		Metrics:            m,
		Observer:           events.NewForwarder(eventBus, protocol.SystemClock),
		FeedBuffer:         session.FeedBuffer,
		CorrelationTimeout: session.CorrelationTimeout(),
	})

	// Capture is optional; the interfaces stay nil when it is off.
	var (
		captures scheduler.CaptureStore
		recorder *db.Recorder
	)
	if capture := cfg.GetCapture(); capture.Enabled {
		store, err := db.NewCaptureDatabase(capture.DatabasePath)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open capture database, capture disabled")
		} else {
			defer store.Close()
			captures = store
			recorder = db.NewRecorder(store, realm.Address, player.String(), protocol.SystemClock, util.ComponentLogger("db"))
			client.SetTap(recorder)
		}
	}

	client.SetLossHandler(func() {
		r.NotifyConnectionLost()
		if recorder != nil {
			recorder.EndSession()
		}
	})

	var (
		mqttHandler *telemetry.MQTTHandler
		heartbeat   health.HeartbeatPublisher
	)
	if mqttCfg := cfg.GetMQTT(); mqttCfg.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(mqttCfg, player.String(), eventBus, version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		} else {
			heartbeat = mqttHandler
		}
	}

	healthMgr := health.NewManager(cfg, eventBus, health.Deps{
		Connected: client.IsConnected,
		Pinger:    set.Pinger,
		Guild:     set.Guild,
		Mirrors:   set,
		Heartbeat: heartbeat,
	})

	var lister cli.CaptureLister
	if captures != nil {
		lister = captures
	}

	var apiServer *api.Server
	if cfg.GetAPI().Enabled {
		apiServer = api.NewServer(cfg, eventBus, api.Deps{
			Set:       set,
			Connected: client.IsConnected,
			Captures:  lister,
			Health:    healthMgr,
			Metrics:   m,
			Version:   version,
		})
	}

	sched := scheduler.NewScheduler(cfg, captures)

	// The CLI's quit arrives as a shutdown event.
	quitCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, event events.Event) error {
		if event.Source != "main" {
			select {
			case quitCh <- struct{}{}:
			default:
			}
		}
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	goTask := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("task", name).Msg("starting")
			fn()
		}()
	}

	goTask("realm connection", func() {
		if err := client.ManageConnection(ctx); err != nil {
			log.Error().Err(err).Msg("realm connection manager stopped")
		}
	})

	if recorder != nil {
		goTask("capture recorder", func() { recorder.Run(ctx) })
	}

	if apiServer != nil {
		goTask("REST API", func() {
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		})
	}

	goTask("health checks", func() { healthMgr.Start(ctx) })

	if mqttHandler != nil {
		goTask("MQTT telemetry", func() {
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		})
	}

	goTask("scheduler", func() { sched.Start(ctx) })

	if !ro.noCLI {
		goTask("interactive CLI", func() {
			cli.NewCLI(cfg, eventBus, set, cli.Deps{
				Connected: client.IsConnected,
				Captures:  lister,
			}).Start(ctx)
		})
	}

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quitCh:
		log.Info().Msg("shutdown requested from CLI")
	case <-ctx.Done():
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	if err := set.Dispose(); err != nil {
		log.Warn().Err(err).Msg("facade disposal reported errors")
	}
	if recorder != nil && recorder.Dropped() > 0 {
		log.Warn().Uint64("dropped", recorder.Dropped()).Msg("capture recorder dropped messages")
	}
	eventBus.Stop()

	log.Info().Msg("realmlink stopped")
	return nil
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors, at a fixed 3-second interval. It returns the last error after
// all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
