// Package connectivity watches the transport link and fans out
// online/offline transitions to the queue and status machine. Flapping
// links are debounced so a brief blip does not trigger a drain storm.
package connectivity

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source is the raw reachability feed the monitor sits on top of. Online answers
// the current state; Subscribe delivers raw transition edges.
type Source interface {
	Online() (bool, error)
	Subscribe(fn func(online bool)) (func(), error)
}

// Monitor debounces a Source and fans its state out to listeners.
type Monitor struct {
	src      Source
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	online    bool
	known     bool
	settle    *time.Timer
	listeners map[int]func(bool)
	nextID    int
	stop      func()
}

// NewMonitor builds a monitor over src. debounce is how long a raw
// transition must hold before listeners hear about it; zero disables
// debouncing.
func NewMonitor(src Source, debounce time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		src:       src,
		logger:    logger,
		debounce:  debounce,
		listeners: make(map[int]func(bool)),
	}
}

// Start begins watching the source. The initial state is checked
// immediately so IsOnline answers before the first edge arrives.
func (m *Monitor) Start() error {
	online, err := m.src.Online()
	if err != nil {
		m.logger.Warn("connectivity check failed, assuming online", zap.Error(err))
		online = true
	}
	m.mu.Lock()
	m.online = online
	m.known = true
	m.mu.Unlock()

	stop, err := m.src.Subscribe(m.onEdge)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.stop = stop
	m.mu.Unlock()
	return nil
}

// Stop tears down the source subscription and any pending settle timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// IsOnline queries the source directly. Connectivity checks fail open: a
// check error reports online, regardless of the last settled state, so a
// broken reachability feed cannot strand queued messages.
func (m *Monitor) IsOnline() bool {
	online, err := m.src.Online()
	if err != nil {
		return true
	}
	return online
}

// Subscribe registers fn and fires it immediately with the current state,
// so a listener attached while already online starts its work without
// waiting for an edge. The returned func cancels the registration.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	online := m.online
	if !m.known {
		online = true
	}
	m.mu.Unlock()

	fn(online)
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// WaitForOnline blocks until the monitor reports online or timeout
// elapses. Returns false on timeout.
func (m *Monitor) WaitForOnline(timeout time.Duration) bool {
	ch := make(chan struct{}, 1)
	cancel := m.Subscribe(func(online bool) {
		if online {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *Monitor) onEdge(online bool) {
	m.mu.Lock()
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	if m.debounce <= 0 {
		m.mu.Unlock()
		m.commit(online)
		return
	}
	m.settle = time.AfterFunc(m.debounce, func() {
		m.commit(online)
	})
	m.mu.Unlock()
}

func (m *Monitor) commit(online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.known = true
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range fns {
		fn(online)
	}
}
