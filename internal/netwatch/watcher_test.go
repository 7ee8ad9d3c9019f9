// ABOUTME: Tests for network change filtering and coalescing
// ABOUTME: Events are fed directly so no netlink socket is needed
package netwatch

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) (*Watcher, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	w := New(Config{
		OnChange: func() { calls.Add(1) },
		Settle:   30 * time.Millisecond,
	})
	t.Cleanup(w.Stop)
	return w, &calls
}

func settle() { time.Sleep(150 * time.Millisecond) }

func TestBurstCoalescesToOneChange(t *testing.T) {
	w, calls := newTestWatcher(t)

	w.handle(event{Name: "wlan0", Up: true})
	w.handle(event{Address: true})
	w.handle(event{Name: "eth0", Up: true})
	settle()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 change, got %d", n)
	}
}

func TestRepeatedStateIsIgnored(t *testing.T) {
	w, calls := newTestWatcher(t)

	w.handle(event{Name: "wlan0", Up: true})
	settle()
	w.handle(event{Name: "wlan0", Up: true})
	settle()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 change, got %d", n)
	}

	w.handle(event{Name: "wlan0", Up: false})
	settle()
	if n := calls.Load(); n != 2 {
		t.Errorf("expected link down to count, got %d", n)
	}
}

func TestLoopbackIsIgnored(t *testing.T) {
	w, calls := newTestWatcher(t)

	w.handle(event{Name: "lo", Up: true, Loopback: true})
	w.handle(event{Address: true, Loopback: true})
	settle()

	if n := calls.Load(); n != 0 {
		t.Errorf("expected no change, got %d", n)
	}
}

func TestDownLinkAppearingIsIgnored(t *testing.T) {
	w, calls := newTestWatcher(t)

	w.handle(event{Name: "docker0", Up: false})
	w.handle(event{Name: "docker0", Removed: true})
	settle()

	if n := calls.Load(); n != 0 {
		t.Errorf("expected no change, got %d", n)
	}
}

func TestRemovingUpLinkCounts(t *testing.T) {
	w, calls := newTestWatcher(t)

	w.handle(event{Name: "usb0", Up: true})
	settle()
	w.handle(event{Name: "usb0", Removed: true})
	settle()

	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 changes, got %d", n)
	}
}

func TestStopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	w := New(Config{OnChange: func() { calls.Add(1) }, Settle: 50 * time.Millisecond})

	w.handle(event{Name: "wlan0", Up: true})
	w.Stop()
	settle()

	if n := calls.Load(); n != 0 {
		t.Errorf("expected pending change to be cancelled, got %d", n)
	}
}
