// Package scheduler arms one-shot expiry timers for trips. Timers are
// in-process only: a restart mid-window means the expiry never fires and the
// trip goes quietly stale, which the product accepts for a 10-minute window.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpireFunc is invoked when a trip's booking window closes. It must be
// idempotent; the scheduler never checks trip state itself.
type ExpireFunc func(ctx context.Context, tripID string)

// Scheduler fires a single deferred expiry per trip. There is no cancellation
// primitive: transitions away from bookable states are protected by the state
// check inside the expire callback, not by timer bookkeeping.
type Scheduler struct {
	expire ExpireFunc
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New creates a scheduler that calls expire when a deadline passes.
func New(expire ExpireFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		expire: expire,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms the expiry timer for a trip. A deadline already in the past
// fires immediately. Scheduling the same trip twice is ignored.
func (s *Scheduler) Schedule(tripID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.timers[tripID]; ok {
		return
	}

	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	s.timers[tripID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, tripID)
		done := s.closed
		s.mu.Unlock()
		if done {
			return
		}

		s.logger.Info("trip expiry timer fired", "trip_id", tripID)
		s.expire(context.Background(), tripID)
	})
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drops all armed timers. Used on shutdown; trips whose windows were
// still open simply never expire in this process.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
