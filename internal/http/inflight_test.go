package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}
	steps := []struct {
		op   func()
		want int64
	}{
		{tracker.Increment, 1},
		{tracker.Increment, 2},
		{tracker.Decrement, 1},
		{tracker.Decrement, 0},
	}
	for i, s := range steps {
		s.op()
		if got := tracker.Count(); got != s.want {
			t.Errorf("step %d: Count() = %d, want %d", i, got, s.want)
		}
	}
}

func TestInFlightTracker_WaitForZero_Drains(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- tracker.WaitForZero(ctx, 2*time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("WaitForZero() = %v, want nil", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after the last request finished")
	}
}

func TestInFlightTracker_WaitForZero_Deadline(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.WaitForZero(ctx, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForZero() = %v, want DeadlineExceeded", err)
	}
}

func TestWaitForInFlight_Idle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := WaitForInFlight(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() with nothing in flight = %v", err)
	}
}
