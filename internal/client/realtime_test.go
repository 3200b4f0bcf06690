package client

import (
	"sync"
	"testing"
)

func TestRealtimeHandleStopAfterSet(t *testing.T) {
	var h realtimeHandle
	calls := 0
	if !h.set(func() { calls++ }) {
		t.Fatal("set before teardown should succeed")
	}
	h.teardown()
	h.teardown()
	if calls != 1 {
		t.Fatalf("stop called %d times, want 1", calls)
	}
}

func TestRealtimeHandleTeardownWinsRace(t *testing.T) {
	var h realtimeHandle
	h.teardown()

	// Startup finishing after shutdown must not leak the subscription.
	calls := 0
	if h.set(func() { calls++ }) {
		t.Fatal("set after teardown should report failure")
	}
	if calls != 1 {
		t.Fatalf("stop called %d times, want immediate teardown", calls)
	}
}

func TestRealtimeHandleConcurrent(t *testing.T) {
	var h realtimeHandle
	var mu sync.Mutex
	calls := 0
	stop := func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.set(stop)
	}()
	go func() {
		defer wg.Done()
		h.teardown()
	}()
	wg.Wait()
	h.teardown()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("stop called %d times, want exactly 1", calls)
	}
}
