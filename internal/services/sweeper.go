package services

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// StaleTripSweeper periodically scans running sessions and flags trips that
// have been active far past their expected duration, so contacts can check on
// the traveler.
type StaleTripSweeper struct {
	tripService *TripService
	interval    time.Duration
	maxAge      time.Duration

	// Background sweep control
	stopChan chan struct{}
	running  bool
}

// NewStaleTripSweeper creates a sweeper over the trip service's sessions.
func NewStaleTripSweeper(tripService *TripService, interval, maxAge time.Duration) *StaleTripSweeper {
	return &StaleTripSweeper{
		tripService: tripService,
		interval:    interval,
		maxAge:      maxAge,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *StaleTripSweeper) Start(ctx context.Context) error {
	if s.running {
		return nil // Already running
	}

	s.running = true

	log.Printf("Starting stale trip sweeper with %v interval (max trip age %v)", s.interval, s.maxAge)
	go s.sweepLoop(ctx)

	return nil
}

// Stop gracefully stops the sweeper.
func (s *StaleTripSweeper) Stop() {
	if !s.running {
		return
	}

	s.running = false
	close(s.stopChan)
	log.Printf("Stopped stale trip sweeper")
}

// sweepLoop runs the periodic sweep in background.
func (s *StaleTripSweeper) sweepLoop(ctx context.Context) {
	defer func() {
		// Recover from any panics in the sweep goroutine
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Stale trip sweep: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Stale trip sweeper stopping due to context cancellation")
			return
		case <-s.stopChan:
			log.Printf("Stale trip sweeper stopping due to stop signal")
			return
		case <-ticker.C:
			s.tripService.notifyStaleTrips(ctx, s.maxAge)
		}
	}
}

// IsRunning returns whether the sweeper is active.
func (s *StaleTripSweeper) IsRunning() bool {
	return s.running
}
