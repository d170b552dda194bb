// Package scheduler runs periodic background syncs on a fixed interval.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"fireflies-dealcloud-sync/internal/common/logger"
)

// Trigger starts a run unless one is already in flight.
type Trigger interface {
	TryRun(trigger string, limit int) bool
}

// Scheduler fires a sync on every tick. A tick that lands while a run is
// still in flight is skipped, not queued.
type Scheduler struct {
	interval time.Duration
	trigger  Trigger
	logger   logger.Logger
	enabled  atomic.Bool
	ticks    atomic.Int64
}

func New(interval time.Duration, trigger Trigger, log logger.Logger) *Scheduler {
	s := &Scheduler{
		interval: interval,
		trigger:  trigger,
		logger:   log,
	}
	s.enabled.Store(true)
	return s
}

// Start runs the tick loop until ctx is cancelled. A non-positive interval
// disables scheduling entirely.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Scheduler disabled, no interval configured", nil)
		return
	}

	s.logger.Info("Scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", nil)
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	s.ticks.Add(1)
	if !s.enabled.Load() {
		s.logger.Debug("Scheduler tick skipped, disabled", nil)
		return
	}
	if !s.trigger.TryRun("scheduled", 0) {
		s.logger.Warn("Scheduled sync skipped, a run is already in flight", nil)
	}
}

func (s *Scheduler) Enable()  { s.enabled.Store(true) }
func (s *Scheduler) Disable() { s.enabled.Store(false) }

func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
