package impersonation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically invokes CleanupExpiredSessions so that stale sessions
// transition to the timed-out state even when nobody reads them. Expiry itself
// is cooperative: status reads already treat passed-expiry sessions as dead,
// the sweeper only settles the stored state and emits the timeout audit trail.
type Sweeper struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
	cron     *cron.Cron
}

// NewSweeper creates a sweeper running at the given interval. A non-positive
// interval falls back to CleanupInterval.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = CleanupInterval
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		timeout:  time.Minute,
	}
}

// Start schedules the sweep. Returns an error if the schedule cannot be
// registered; the sweep itself runs on the cron's goroutine.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep); err != nil {
		return fmt.Errorf("failed to schedule expiration sweep: %w", err)
	}
	s.cron = c
	c.Start()

	slog.Info("Expiration sweeper started", "interval", s.interval)
	return nil
}

// Stop halts the schedule. An in-flight sweep is allowed to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
	slog.Info("Expiration sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.service.CleanupExpiredSessions(ctx)
	if err != nil {
		slog.Error("Expiration sweep failed", "err", err)
		return
	}
	if result.ExpiredSessionsCleaned > 0 {
		slog.Info("Expiration sweep finished", "expired_sessions_cleaned", result.ExpiredSessionsCleaned)
	}
}
