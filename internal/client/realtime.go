package client

import "sync"

// realtimeHandle hands the realtime-sync stop func from the startup
// goroutine to the shutdown hook. Startup and shutdown race when teardown
// interrupts a slow initial sync; whichever side loses must still leave
// the subscription torn down exactly once.
type realtimeHandle struct {
	mu      sync.Mutex
	stop    func()
	stopped bool
}

// set records the stop func. If teardown already ran, set invokes stop
// immediately and reports false: the caller should abandon startup.
func (h *realtimeHandle) set(stop func()) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		stop()
		return false
	}
	h.stop = stop
	h.mu.Unlock()
	return true
}

// teardown invokes the recorded stop func, if any, and marks the handle
// stopped so a later set does not revive the subscription. Idempotent.
func (h *realtimeHandle) teardown() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.stopped = true
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}
