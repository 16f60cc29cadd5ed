package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/ratelimit"
)

// HousekeepingService periodically drops expired in-memory rate-limit
// entries so idle actors don't accumulate.
type HousekeepingService struct {
	Sweepers []ratelimit.Sweeper
	Logger   *slog.Logger
	Interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to five minutes.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration, sweepers ...ratelimit.Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Sweepers: sweepers,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down and waits for an in-progress sweep.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs every sweeper once and returns the number of entries dropped.
func (s *HousekeepingService) Sweep() int {
	total := 0
	for _, sw := range s.Sweepers {
		if sw == nil {
			continue
		}
		total += sw.Sweep()
	}
	s.Logger.Debug("housekeeping sweep completed", "removed", total)
	return total
}
