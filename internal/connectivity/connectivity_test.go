package connectivity

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func startMonitor(t *testing.T, src Source, debounce time.Duration) *Monitor {
	t.Helper()
	m := NewMonitor(src, debounce, zap.NewNop())
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestSubscribeFiresImmediately(t *testing.T) {
	m := startMonitor(t, NewManual(true), 0)

	var got []bool
	cancel := m.Subscribe(func(online bool) { got = append(got, online) })
	defer cancel()

	if len(got) != 1 || !got[0] {
		t.Fatalf("expected immediate online notification, got %v", got)
	}
}

func TestTransitionsReachListeners(t *testing.T) {
	src := NewManual(true)
	m := startMonitor(t, src, 0)

	var mu sync.Mutex
	var got []bool
	cancel := m.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})
	defer cancel()

	src.Set(false)
	src.Set(true)

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDebounceSwallowsBlip(t *testing.T) {
	src := NewManual(true)
	m := startMonitor(t, src, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []bool
	cancel := m.Subscribe(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})
	defer cancel()

	// A blip shorter than the settle window must not surface.
	src.Set(false)
	src.Set(true)
	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 {
		t.Fatalf("blip leaked through debounce: %v", transitions)
	}
}

func TestDebouncedTransitionSettles(t *testing.T) {
	src := NewManual(true)
	m := startMonitor(t, src, 20*time.Millisecond)

	done := make(chan struct{}, 1)
	cancel := m.Subscribe(func(online bool) {
		if !online {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	src.Set(false)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("offline transition never settled")
	}
	if m.IsOnline() {
		t.Fatal("IsOnline disagrees with settled state")
	}
}

func TestIsOnlineFailsOpen(t *testing.T) {
	src := NewManual(true)
	m := NewMonitor(src, 0, zap.NewNop())

	src.SetErr(errors.New("reachability feed broken"))
	if !m.IsOnline() {
		t.Fatal("unknown state with a broken check must report online")
	}
}

func TestIsOnlineFailsOpenAfterOfflineState(t *testing.T) {
	src := NewManual(true)
	m := startMonitor(t, src, 0)

	// Settle into offline, then break the reachability feed. The check
	// must still report online: a dead feed must not block sends.
	src.Set(false)
	if m.IsOnline() {
		t.Fatal("expected offline before the feed broke")
	}
	src.SetErr(errors.New("reachability feed broken"))
	if !m.IsOnline() {
		t.Fatal("check error must report online, not the last settled state")
	}
}

func TestWaitForOnline(t *testing.T) {
	src := NewManual(false)
	m := startMonitor(t, src, 0)

	if m.WaitForOnline(30 * time.Millisecond) {
		t.Fatal("reported online while offline")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.Set(true)
	}()
	if !m.WaitForOnline(time.Second) {
		t.Fatal("missed the online transition")
	}
}
