package frameclock

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClockTicksOnlyWithSubscribers(t *testing.T) {
	t.Parallel()

	clock := New(200)
	defer clock.Close()

	if clock.Running() {
		t.Fatalf("clock should not run without subscribers")
	}

	var ticks atomic.Int32
	unsubscribe := clock.Subscribe(func() { ticks.Add(1) })
	if !clock.Running() {
		t.Fatalf("clock should run once subscribed")
	}

	waitFor(t, func() bool { return ticks.Load() >= 3 })

	unsubscribe()
	if clock.Running() {
		t.Fatalf("clock should stop after last unsubscribe")
	}

	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	// At most one tick already in progress may land after unsubscribe.
	if got := ticks.Load(); got > settled+1 {
		t.Fatalf("ticks continued after unsubscribe: %d -> %d", settled, got)
	}
}

func TestClockPausesWhileHidden(t *testing.T) {
	t.Parallel()

	clock := New(200)
	defer clock.Close()

	var ticks atomic.Int32
	unsubscribe := clock.Subscribe(func() { ticks.Add(1) })
	defer unsubscribe()

	clock.SetVisible(false)
	if clock.Running() || clock.Visible() {
		t.Fatalf("hidden clock should not run")
	}

	paused := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got > paused+1 {
		t.Fatalf("ticks while hidden: %d -> %d", paused, got)
	}

	clock.SetVisible(true)
	waitFor(t, func() bool { return ticks.Load() > paused+2 })
}

func TestClockUnsubscribeFromInsideTick(t *testing.T) {
	t.Parallel()

	clock := New(200)
	defer clock.Close()

	var ticks atomic.Int32
	var unsubscribe func()
	ready := make(chan struct{})
	unsubscribe = clock.Subscribe(func() {
		<-ready
		ticks.Add(1)
		unsubscribe()
	})
	close(ready)

	waitFor(t, func() bool { return !clock.Running() })
	time.Sleep(20 * time.Millisecond)
	if got := ticks.Load(); got != 1 {
		t.Fatalf("expected exactly one tick, got %d", got)
	}
}

func TestClockUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	clock := New(100)
	defer clock.Close()

	first := clock.Subscribe(func() {})
	second := clock.Subscribe(func() {})
	first()
	first()
	if !clock.Running() {
		t.Fatalf("remaining subscriber should keep clock running")
	}
	second()
	if clock.Running() {
		t.Fatalf("clock should stop once all subscribers are gone")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
