package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestUntilNextDecayTickSameDay(t *testing.T) {
	s := New(func(context.Context) {}, func(context.Context) {}, func() time.Time {
		return time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	}, nil)
	got := s.untilNextDecayTick()
	want := 2 * time.Hour
	if got != want {
		t.Errorf("untilNextDecayTick() = %v, want %v", got, want)
	}
}

func TestUntilNextDecayTickRollsToTomorrow(t *testing.T) {
	s := New(func(context.Context) {}, func(context.Context) {}, func() time.Time {
		return time.Date(2026, 7, 31, 5, 0, 0, 0, time.UTC)
	}, nil)
	got := s.untilNextDecayTick()
	want := 22 * time.Hour
	if got != want {
		t.Errorf("untilNextDecayTick() = %v, want %v", got, want)
	}
}

func TestStartStopIsIdempotentAndClean(t *testing.T) {
	var decayCalls int
	decay := func(context.Context) { decayCalls++ }
	s := New(func(context.Context) {}, decay, func() time.Time {
		return time.Date(2026, 7, 31, 2, 59, 59, int(999*time.Millisecond), time.UTC)
	}, nil)

	s.Start(context.Background())
	s.Start(context.Background()) // should be a no-op, not a second set of goroutines
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop() // should not block or panic on a second Stop
}
