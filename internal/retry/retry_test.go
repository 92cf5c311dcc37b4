package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiftdesk/warm-transfer/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFirstAttemptSuccess(t *testing.T) {
	fc := clock.Fake(epoch)
	calls := 0
	err := Do(context.Background(), fc, Policy{MaxAttempts: 3}, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := fc.PendingCount(); got != 0 {
		t.Errorf("pending timers = %d, want 0", got)
	}
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	fc := clock.Fake(epoch)
	transient := errors.New("connection reset")
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), fc, Policy{MaxAttempts: 3, InitialDelay: time.Second},
			func(context.Context) error {
				calls++
				if calls < 3 {
					return transient
				}
				return nil
			})
	}()

	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not finish")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPermanentErrorStopsImmediately(t *testing.T) {
	fc := clock.Fake(epoch)
	permanent := errors.New("invalid number")
	calls := 0

	err := Do(context.Background(), fc, Policy{
		MaxAttempts: 5,
		Retryable:   func(error) bool { return false },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("Do returned %v, want permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExhaustionReturnsLastError(t *testing.T) {
	fc := clock.Fake(epoch)
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), fc, Policy{MaxAttempts: 3, InitialDelay: time.Second},
			func(context.Context) error {
				calls++
				return errors.New("still down")
			})
	}()

	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	err := <-done
	if err == nil || err.Error() != "still down" {
		t.Fatalf("Do returned %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestContextCanceledDuringBackoff(t *testing.T) {
	fc := clock.Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, fc, Policy{MaxAttempts: 3, InitialDelay: time.Minute},
			func(context.Context) error { return errors.New("down") })
	}()

	fc.WaitForTimers(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not observe cancellation")
	}
}

func TestDelayDoublingAndCap(t *testing.T) {
	p := Policy{InitialDelay: 4 * time.Second, MaxDelay: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{5, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.delay(tc.attempt); got != tc.want {
			t.Errorf("delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestOnRetryObservesFailedAttempts(t *testing.T) {
	fc := clock.Fake(epoch)
	var observed []int

	done := make(chan error, 1)
	go func() {
		calls := 0
		done <- Do(context.Background(), fc, Policy{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			OnRetry:      func(attempt int, err error) { observed = append(observed, attempt) },
		}, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	if err := <-done; err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", observed)
	}
}
