package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAfterFiresOnAdvance(t *testing.T) {
	fc := Fake(epoch)
	ch := fc.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	fc.Advance(5 * time.Second)
	select {
	case got := <-ch:
		want := epoch.Add(5 * time.Second)
		if !got.Equal(want) {
			t.Errorf("fire time = %v, want %v", got, want)
		}
	default:
		t.Fatal("timer did not fire after Advance")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	fc := Fake(epoch)
	select {
	case <-fc.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestTickerRepeats(t *testing.T) {
	fc := Fake(epoch)
	ticker := fc.NewTicker(time.Minute)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		fc.Advance(time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i+1)
		}
	}

	ticker.Stop()
	fc.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("tick delivered after Stop")
	default:
	}
}

func TestSleepBlocksUntilAdvance(t *testing.T) {
	fc := Fake(epoch)
	done := make(chan struct{})
	go func() {
		fc.Sleep(10 * time.Second)
		close(done)
	}()

	fc.WaitForTimers(1)
	fc.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestPendingCount(t *testing.T) {
	fc := Fake(epoch)
	if got := fc.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
	fc.After(time.Second)
	fc.After(2 * time.Second)
	if got := fc.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
	fc.Advance(2 * time.Second)
	if got := fc.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after Advance = %d, want 0", got)
	}
}
