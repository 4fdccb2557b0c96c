package checkin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is the detection cadence.
const DefaultTickInterval = 100 * time.Millisecond

// Scheduler runs a tick function on a fixed cadence with at most one tick in
// flight. A tick that fires while the previous one is still running is
// dropped, never queued.
type Scheduler struct {
	interval time.Duration

	// OnDrop, if set, is called for every dropped tick.
	OnDrop func()

	busy    atomic.Bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. A non-positive interval uses
// DefaultTickInterval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{interval: interval}
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run fires tick every interval until ctx is done. Each tick runs on its own
// goroutine with ctx, so a slow tick never delays the timer. Run does not
// wait for an in-flight tick; call Wait for that.
func (s *Scheduler) Run(ctx context.Context, tick func(ctx context.Context)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// A tick may fire in the same instant ctx ends; never start new work
		// once the loop is stopping.
		if ctx.Err() != nil {
			return
		}
		if !s.busy.CompareAndSwap(false, true) {
			s.dropped.Add(1)
			if s.OnDrop != nil {
				s.OnDrop()
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.busy.Store(false)
			tick(ctx)
		}()
	}
}

// Wait blocks until the in-flight tick, if any, has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Dropped returns how many ticks were skipped because one was in flight.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}
