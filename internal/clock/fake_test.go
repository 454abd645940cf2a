package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeTimerFiresAtDeadline(t *testing.T) {
	f := NewFake(epoch)
	timer := f.NewTimer(5 * time.Second)

	f.Advance(4 * time.Second)
	select {
	case <-timer.C:
		t.Fatal("timer fired before deadline")
	default:
	}

	f.Advance(time.Second)
	select {
	case got := <-timer.C:
		if !got.Equal(epoch.Add(5 * time.Second)) {
			t.Errorf("fire time = %v, want %v", got, epoch.Add(5*time.Second))
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestFakeTimerStop(t *testing.T) {
	f := NewFake(epoch)
	timer := f.NewTimer(time.Second)

	if f.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", f.PendingCount())
	}
	if !timer.Stop() {
		t.Error("Stop() = false, want true for pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if f.PendingCount() != 0 {
		t.Errorf("PendingCount() after Stop = %d, want 0", f.PendingCount())
	}

	f.Advance(2 * time.Second)
	select {
	case <-timer.C:
		t.Error("stopped timer fired")
	default:
	}
}

func TestFakeTickerRepeats(t *testing.T) {
	f := NewFake(epoch)
	ticker := f.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		f.Advance(5 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
	if f.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1 (ticker stays registered)", f.PendingCount())
	}
}

func TestFakeTickerDropsOverflow(t *testing.T) {
	f := NewFake(epoch)
	ticker := f.NewTicker(time.Second)
	defer ticker.Stop()

	f.Advance(10 * time.Second)

	<-ticker.C
	select {
	case <-ticker.C:
		t.Error("ticker queued more than one tick")
	default:
	}
}

func TestFakeSleepAndWaitForTimers(t *testing.T) {
	f := NewFake(epoch)
	done := make(chan struct{})

	go func() {
		f.Sleep(3 * time.Second)
		close(done)
	}()

	f.WaitForTimers(1)
	f.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeNonPositiveTimerFiresImmediately(t *testing.T) {
	f := NewFake(epoch)
	select {
	case <-f.NewTimer(0).C:
	default:
		t.Fatal("NewTimer(0) did not fire immediately")
	}
}
