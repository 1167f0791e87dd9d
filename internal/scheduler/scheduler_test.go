package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type firedSet struct {
	mu    sync.Mutex
	trips map[string]int
}

func newFiredSet() *firedSet {
	return &firedSet{trips: make(map[string]int)}
}

func (f *firedSet) expire(ctx context.Context, tripID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips[tripID]++
}

func (f *firedSet) count(tripID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trips[tripID]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSchedulerFires(t *testing.T) {
	t.Parallel()

	fired := newFiredSet()
	s := New(fired.expire, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer s.Stop()

	s.Schedule("trip-1", time.Now().Add(20*time.Millisecond))
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}

	waitFor(t, 2*time.Second, func() bool { return fired.count("trip-1") == 1 })
	waitFor(t, 2*time.Second, func() bool { return s.Pending() == 0 })
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	t.Parallel()

	fired := newFiredSet()
	s := New(fired.expire, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer s.Stop()

	s.Schedule("trip-1", time.Now().Add(-time.Minute))
	waitFor(t, 2*time.Second, func() bool { return fired.count("trip-1") == 1 })
}

func TestSchedulerIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	fired := newFiredSet()
	s := New(fired.expire, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer s.Stop()

	s.Schedule("trip-1", time.Now().Add(20*time.Millisecond))
	s.Schedule("trip-1", time.Now().Add(20*time.Millisecond))
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}

	waitFor(t, 2*time.Second, func() bool { return fired.count("trip-1") >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := fired.count("trip-1"); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestSchedulerStopDropsTimers(t *testing.T) {
	t.Parallel()

	fired := newFiredSet()
	s := New(fired.expire, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.Schedule("trip-1", time.Now().Add(30*time.Millisecond))
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := fired.count("trip-1"); got != 0 {
		t.Errorf("fired %d times after Stop, want 0", got)
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d after Stop, want 0", s.Pending())
	}

	// Scheduling after Stop is ignored.
	s.Schedule("trip-2", time.Now())
	if s.Pending() != 0 {
		t.Errorf("pending = %d after post-Stop schedule, want 0", s.Pending())
	}
}
