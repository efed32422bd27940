// Package scheduler runs daily housekeeping: capture retention and log
// cleanup.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/util"
)

// CaptureStore is the part of the capture database the scheduler needs.
type CaptureStore interface {
	Purge(olderThan time.Time) (int64, error)
	Sessions() ([]db.Session, error)
}

// CleanupResult describes one cleanup run.
type CleanupResult struct {
	PurgedSessions int64
	RemovedLogs    int
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	captures CaptureStore
	now      func() time.Time
}

// NewScheduler creates a new task scheduler. captures may be nil when
// capture is disabled.
func NewScheduler(cfg *config.Config, captures CaptureStore) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		captures: captures,
		now:      time.Now,
	}
}

// Start runs the scheduled tasks until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	go s.runCleanupLoop(ctx)
	go s.runStatsCollectionLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runCleanupLoop(ctx context.Context) {
	for {
		nextRun := NextRun(s.cfg.GetCapture().CleanupTime, s.now())
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("capture cleanup scheduled")

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunCleanup()
		}
	}
}

// RunCleanup purges captures and log files past their retention.
func (s *Scheduler) RunCleanup() CleanupResult {
	var result CleanupResult
	now := s.now()

	capture := s.cfg.GetCapture()
	if capture.Enabled && s.captures != nil && capture.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -capture.RetentionDays)
		log.Info().
			Int("retention_days", capture.RetentionDays).
			Time("cutoff", cutoff).
			Msg("running capture cleanup")

		n, err := s.captures.Purge(cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("capture cleanup failed")
		}
		result.PurgedSessions = n
	}

	logging := s.cfg.GetLogging()
	result.RemovedLogs = util.CleanOldLogs(logging.Directory, logging.RetentionDays, now)

	log.Info().
		Int64("purged_sessions", result.PurgedSessions).
		Int("removed_logs", result.RemovedLogs).
		Msg("cleanup completed")
	return result
}

func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
		}
	}
}

// collectStats logs the size of the capture store.
func (s *Scheduler) collectStats() {
	if s.captures == nil {
		return
	}
	sessions, err := s.captures.Sessions()
	if err != nil {
		log.Warn().Err(err).Msg("failed to collect capture stats")
		return
	}

	messages := 0
	for _, sess := range sessions {
		messages += sess.Messages
	}

	var size int64
	if info, err := os.Stat(s.cfg.GetCapture().DatabasePath); err == nil {
		size = info.Size()
	}

	log.Info().
		Int("sessions", len(sessions)).
		Int("messages", messages).
		Str("database_size", formatBytes(size)).
		Msg("daily stats collected")
}

// NextRun returns the first time at or after now when the daily HH:MM
// cleanupTime falls. Unparseable values fall back to 04:00.
func NextRun(cleanupTime string, now time.Time) time.Time {
	parts := strings.Split(cleanupTime, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		var h, m int
		_, errH := fmt.Sscanf(parts[0], "%d", &h)
		_, errM := fmt.Sscanf(parts[1], "%d", &m)
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			hour, minute = h, m
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
