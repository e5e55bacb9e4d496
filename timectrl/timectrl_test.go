package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start, 0)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	want := start.Add(42 * time.Second)
	if got := c.Advance(42 * time.Second); !got.Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestManualClockTicksOnRead(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start, 5*time.Millisecond)

	c.Now()
	c.Now()
	if got, want := c.Now(), start.Add(10*time.Millisecond); !got.Equal(want) {
		t.Fatalf("third Now() = %v, want %v", got, want)
	}
}

func TestBudgetIterationCap(t *testing.T) {
	b := NewBudget(3, 0, nil)
	b.Start()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if b.Exhausted(ctx, i) {
			t.Fatalf("budget exhausted after %d iterations, want 3", i)
		}
	}
	if !b.Exhausted(ctx, 3) {
		t.Fatalf("budget not exhausted after 3 iterations")
	}
}

func TestBudgetDurationCap(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start, 0)
	b := NewBudget(0, time.Second, c)
	b.Start()

	if b.Exhausted(context.Background(), 1000) {
		t.Fatalf("uncapped iterations should not exhaust the budget")
	}
	c.Advance(time.Second)
	if !b.Exhausted(context.Background(), 1000) {
		t.Fatalf("budget should be exhausted once MaxDuration has elapsed")
	}
}

func TestBudgetContextCancellation(t *testing.T) {
	b := NewBudget(0, 0, nil)
	b.Start()
	ctx, cancel := context.WithCancel(context.Background())
	if b.Exhausted(ctx, 0) {
		t.Fatalf("live context should not exhaust the budget")
	}
	cancel()
	if !b.Exhausted(ctx, 0) {
		t.Fatalf("cancelled context should exhaust the budget")
	}
}
