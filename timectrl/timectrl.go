// Package timectrl provides the clocks and work budgets that bound a
// planner search. The optimizer checks its Budget once per iteration, which
// is the only cancellation point of a solve.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is an interface for reading time. Budgets depend on the interface
// rather than on time.Now so tests can drive elapsed time explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// WallClock reads the host clock.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to. When Tick is
// non-zero every call to Now advances the clock by Tick after reading it,
// which models a fixed cost per budget check.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
	Tick    time.Duration
}

// NewManualClock constructs a clock frozen at start.
func NewManualClock(start time.Time, tick time.Duration) *ManualClock {
	return &ManualClock{current: start, Tick: tick}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.Tick)
	return now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Set jumps the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Budget bounds the work of one search by iteration count, elapsed time
// and context cancellation. A Budget belongs to a single search and is not
// safe for concurrent use.
type Budget struct {
	// MaxIterations caps completed iterations. Zero means no cap.
	MaxIterations int
	// MaxDuration caps elapsed time since Start. Zero means no cap.
	MaxDuration time.Duration

	clock   Clock
	started time.Time
}

// NewBudget constructs a budget; a nil clock falls back to WallClock.
func NewBudget(maxIterations int, maxDuration time.Duration, clock Clock) *Budget {
	if clock == nil {
		clock = WallClock{}
	}
	return &Budget{
		MaxIterations: maxIterations,
		MaxDuration:   maxDuration,
		clock:         clock,
	}
}

// Start records the reference time for the duration cap.
func (b *Budget) Start() {
	b.started = b.clock.Now()
}

// Elapsed returns the time since Start.
func (b *Budget) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.started)
}

// Exhausted reports whether another iteration may not run after completed
// iterations. The clock is only read when a duration cap is set.
func (b *Budget) Exhausted(ctx context.Context, completed int) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if b.MaxIterations > 0 && completed >= b.MaxIterations {
		return true
	}
	if b.MaxDuration > 0 && b.Elapsed() >= b.MaxDuration {
		return true
	}
	return false
}
