// Package throttle provides a minimum-interval gate for upstream calls.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Throttler enforces a minimum interval between events. It keeps the
// timestamp of the last event and can either report (Check) or enforce
// (Wait) that the interval has elapsed since then.
//
// A Throttler built with a non-positive interval is a no-op: every
// operation succeeds immediately. The zero value behaves the same way.
type Throttler struct {
	interval time.Duration

	// waitMu serializes Wait callers. The winner sleeps the remaining
	// interval while holding it and re-marks on exit, so each queued
	// caller waits a full interval after the previous one.
	waitMu sync.Mutex

	// mu guards last/marked so Mark, Reset and Check never block behind
	// a sleeping Wait.
	mu     sync.Mutex
	last   time.Time
	marked bool
}

// New creates a throttler with the given minimum interval between events.
func New(interval time.Duration) *Throttler {
	return &Throttler{interval: interval}
}

// Interval returns the configured minimum interval.
func (t *Throttler) Interval() time.Duration {
	return t.interval
}

// Mark records that an event happened now.
func (t *Throttler) Mark() {
	if t.interval <= 0 {
		return
	}
	t.mu.Lock()
	t.last = time.Now()
	t.marked = true
	t.mu.Unlock()
}

// Reset forgets the last event, so the next Check or Wait passes
// immediately.
func (t *Throttler) Reset() {
	if t.interval <= 0 {
		return
	}
	t.mu.Lock()
	t.marked = false
	t.mu.Unlock()
}

// Check reports whether the interval has elapsed since the last Mark.
// It returns true when no event was recorded.
func (t *Throttler) Check() bool {
	if t.interval <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.marked {
		return true
	}
	return time.Since(t.last) > t.interval
}

// Wait blocks until the interval since the last Mark has elapsed, then
// re-marks so the next waiter starts a fresh interval. Concurrent callers
// are serialized and exit in lock-acquisition order, each a full interval
// after the previous one.
//
// When ctx is cancelled the wait is abandoned without marking, so the
// cancelled caller does not penalize the next one.
func (t *Throttler) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return nil
	}

	t.waitMu.Lock()
	defer t.waitMu.Unlock()

	t.mu.Lock()
	marked, last := t.marked, t.last
	t.mu.Unlock()
	if !marked {
		return nil
	}

	remaining := t.interval - time.Since(last)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		t.Mark()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
