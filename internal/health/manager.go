// Package health runs periodic checks against the realm session: ping
// latency, guild roster refresh, capture disk usage and the telemetry
// heartbeat.
package health

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/subsystem"
	"github.com/energizer-project/realmlink/internal/util"
)

// Pinger measures a round trip to the realm.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, bool, error)
}

// RosterRequester asks the realm for the guild roster.
type RosterRequester interface {
	RequestRoster(ctx context.Context) error
}

// Snapshotter returns every facade mirror keyed by name.
type Snapshotter interface {
	Snapshot() map[string]any
}

// HeartbeatPublisher sends the periodic mirror snapshot somewhere.
type HeartbeatPublisher interface {
	PublishHeartbeat(snapshot map[string]interface{})
}

// Deps are the collaborators the checks use. Nil members disable the
// checks that need them.
type Deps struct {
	Connected func() bool
	Pinger    Pinger
	Guild     RosterRequester
	Mirrors   Snapshotter
	Heartbeat HeartbeatPublisher
}

// Status is the outcome of the latest checks.
type Status struct {
	LastRTT       time.Duration `json:"last_rtt"`
	LastPing      time.Time     `json:"last_ping"`
	MissedPongs   int           `json:"missed_pongs"`
	LatencyAlerts int           `json:"latency_alerts"`
	LastRoster    time.Time     `json:"last_roster"`
	Heartbeats    int           `json:"heartbeats"`
}

// Manager runs periodic health checks.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	now      func() time.Time

	mu     sync.Mutex
	status Status
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		now:      time.Now,
	}
}

// Status returns a copy of the latest check results.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start launches every check with its own ticker and blocks until ctx ends.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetHealth()

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"ping", timers.PingIntervalSec, m.CheckLatency},
		{"guild_roster", timers.RosterRefreshSec, m.RefreshRoster},
		{"capture_disk", 3600, m.CheckCaptureDisk},
		{"heartbeat", timers.HeartbeatIntervalSec, m.PublishHeartbeat},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

func (m *Manager) connected() bool {
	return m.deps.Connected == nil || m.deps.Connected()
}

// CheckLatency pings the realm and raises EventLatencyHigh when the round
// trip exceeds the configured threshold.
func (m *Manager) CheckLatency(ctx context.Context) {
	if m.deps.Pinger == nil || !m.connected() {
		return
	}

	rtt, ok, err := m.deps.Pinger.Ping(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, subsystem.ErrDisposed) {
			log.Warn().Err(err).Msg("ping failed")
		}
		return
	}

	m.mu.Lock()
	m.status.LastPing = m.now()
	if !ok {
		m.status.MissedPongs++
		m.mu.Unlock()
		log.Warn().Msg("realm did not answer ping")
		return
	}
	m.status.LastRTT = rtt
	threshold := time.Duration(m.cfg.GetHealth().LatencyWarnMs) * time.Millisecond
	high := threshold > 0 && rtt > threshold
	if high {
		m.status.LatencyAlerts++
	}
	m.mu.Unlock()

	log.Debug().Dur("rtt", rtt).Msg("realm latency")
	if !high {
		return
	}

	log.Warn().Dur("rtt", rtt).Dur("threshold", threshold).Msg("realm latency high")
	if m.eventBus != nil {
		m.eventBus.Emit(ctx, events.Event{
			Type:    events.EventLatencyHigh,
			Source:  "health_check",
			Payload: events.LatencyPayload{RTT: rtt, Threshold: threshold},
		})
	}
}

// RefreshRoster asks for the guild roster so presence stays current.
func (m *Manager) RefreshRoster(ctx context.Context) {
	if m.deps.Guild == nil || !m.connected() {
		return
	}
	if err := m.deps.Guild.RequestRoster(ctx); err != nil {
		log.Warn().Err(err).Msg("guild roster refresh failed")
		return
	}
	m.mu.Lock()
	m.status.LastRoster = m.now()
	m.mu.Unlock()
}

// CheckCaptureDisk warns when the volume holding the capture database
// fills up.
func (m *Manager) CheckCaptureDisk(ctx context.Context) {
	capture := m.cfg.GetCapture()
	if !capture.Enabled {
		return
	}

	usage, err := util.GetDiskUsage(filepath.Dir(capture.DatabasePath))
	if err != nil {
		log.Warn().Err(err).Msg("capture disk check failed")
		return
	}

	log.Debug().
		Float64("used_percent", usage.UsedPercent).
		Uint64("free_gb", usage.Free).
		Msg("capture disk utilization")

	if level := diskLevel(usage.UsedPercent); level != "" {
		log.Warn().Str("level", level).Msg(fmt.Sprintf("Disk usage at %.1f%% (%d GB free of %d GB total)",
			usage.UsedPercent, usage.Free, usage.Total))
	}
}

// diskLevel maps a usage percentage to an alert level: 80/90/95/100.
func diskLevel(usedPercent float64) string {
	switch {
	case usedPercent >= 100:
		return "critical"
	case usedPercent >= 95:
		return "error"
	case usedPercent >= 90:
		return "warning"
	case usedPercent >= 80:
		return "info"
	}
	return ""
}

// PublishHeartbeat sends every facade mirror to the heartbeat publisher.
func (m *Manager) PublishHeartbeat(ctx context.Context) {
	if m.deps.Heartbeat == nil || m.deps.Mirrors == nil {
		return
	}
	m.deps.Heartbeat.PublishHeartbeat(m.deps.Mirrors.Snapshot())
	m.mu.Lock()
	m.status.Heartbeats++
	m.mu.Unlock()
}
