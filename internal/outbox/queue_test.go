package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/parlochat/parlo/internal/bus"
	"github.com/parlochat/parlo/internal/connectivity"
	"github.com/parlochat/parlo/internal/remote"
	"github.com/parlochat/parlo/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedChat(t *testing.T, db *store.DB, chatID string, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		if err := db.UpsertUser(&store.User{UID: uid}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertChat(&store.Chat{ID: chatID, Type: store.ChatOneToOne, ParticipantIDs: uids}); err != nil {
		t.Fatal(err)
	}
}

// recordingPusher captures pushed local ids and delegates outcomes to fn.
type recordingPusher struct {
	mu     sync.Mutex
	pushed []string
	fn     func(q *store.QueueItem) error
}

func (p *recordingPusher) PushMessage(_ context.Context, q *store.QueueItem) error {
	p.mu.Lock()
	p.pushed = append(p.pushed, q.LocalID)
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(q)
	}
	return nil
}

func (p *recordingPusher) order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pushed...)
}

func testQueue(t *testing.T, online bool, pusher Pusher) (*Queue, *store.DB, *connectivity.Manual, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	src := connectivity.NewManual(online)
	mon := connectivity.NewMonitor(src, 0, zap.NewNop())
	if err := mon.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mon.Stop)
	b := bus.New()
	q := NewQueue(db, pusher, mon, b, zap.NewNop())
	return q, db, src, b
}

func enqueue(t *testing.T, q *Queue, chatID, content string) string {
	t.Helper()
	localID, err := q.Enqueue(context.Background(), &store.Message{
		ChatID: chatID, SenderID: "u1", Type: store.MessageText, Content: content,
	})
	if err != nil {
		t.Fatal(err)
	}
	return localID
}

func TestEnqueueIsDurableOffline(t *testing.T) {
	q, db, _, _ := testQueue(t, false, &recordingPusher{})
	seedChat(t, db, "c1", "u1", "u2")

	localID := enqueue(t, q, "c1", "hello")

	n, err := db.OutboxCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("outbox rows = %d, want 1", n)
	}
	m, err := db.GetMessageByLocalID(localID)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Status != store.StatusSending {
		t.Fatalf("optimistic row missing or wrong status: %+v", m)
	}
}

func TestDrainFIFO(t *testing.T) {
	p := &recordingPusher{}
	q, db, _, _ := testQueue(t, false, p)
	seedChat(t, db, "c1", "u1", "u2")

	ids := []string{
		enqueue(t, q, "c1", "first"),
		enqueue(t, q, "c1", "second"),
		enqueue(t, q, "c1", "third"),
	}

	q.Drain(context.Background())

	got := p.order()
	if len(got) != 3 {
		t.Fatalf("pushed %v", got)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("order broken: got %v, want %v", got, ids)
		}
	}
	n, err := db.OutboxCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("queue not emptied: %d left", n)
	}
}

func TestDrainSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := &recordingPusher{fn: func(*store.QueueItem) error {
		entered <- struct{}{}
		<-release
		return nil
	}}
	q, db, _, _ := testQueue(t, false, p)
	seedChat(t, db, "c1", "u1", "u2")
	enqueue(t, q, "c1", "only")

	done := make(chan struct{})
	go func() {
		q.Drain(context.Background())
		close(done)
	}()
	<-entered

	// A second drain while one is in flight must return immediately.
	q.Drain(context.Background())
	close(release)
	<-done

	if got := p.order(); len(got) != 1 {
		t.Fatalf("message pushed %d times", len(got))
	}
}

func TestDrainPausesOnNetworkError(t *testing.T) {
	boom := &remote.NetworkError{Timeout: true, Err: errors.New("down")}
	p := &recordingPusher{fn: func(*store.QueueItem) error { return boom }}
	q, db, _, _ := testQueue(t, false, p)
	seedChat(t, db, "c1", "u1", "u2")

	enqueue(t, q, "c1", "first")
	enqueue(t, q, "c1", "second")

	q.Drain(context.Background())

	// Only the head was attempted; both rows stay queued with the head's
	// attempt recorded.
	if got := p.order(); len(got) != 1 {
		t.Fatalf("attempts = %v, want head only", got)
	}
	items, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("rows dropped: %d left", len(items))
	}
	if items[0].Attempt != 1 || items[0].LastError == "" {
		t.Fatalf("attempt not recorded: %+v", items[0])
	}
}

func TestDrainSkipsPermanentFailure(t *testing.T) {
	var poisoned string
	p := &recordingPusher{}
	p.fn = func(item *store.QueueItem) error {
		if item.LocalID == poisoned {
			return errors.New("rejected")
		}
		return nil
	}
	q, db, _, b := testQueue(t, false, p)
	seedChat(t, db, "c1", "u1", "u2")

	events, unsub := b.Subscribe("message.send_failed", 4)
	defer unsub()

	poisoned = enqueue(t, q, "c1", "bad")
	good := enqueue(t, q, "c1", "good")

	q.Drain(context.Background())

	items, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].LocalID != poisoned {
		t.Fatalf("expected only the poisoned row queued, got %+v", items)
	}
	order := p.order()
	found := false
	for _, id := range order {
		if id == good {
			found = true
		}
	}
	if !found {
		t.Fatalf("healthy sibling never pushed: %v", order)
	}
	select {
	case evt := <-events:
		if evt.Payload != poisoned {
			t.Fatalf("failure event for %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestDrainStopsWhenLinkDrops(t *testing.T) {
	var src *connectivity.Manual
	p := &recordingPusher{}
	p.fn = func(*store.QueueItem) error {
		src.Set(false)
		return nil
	}
	q, db, s, _ := testQueue(t, true, p)
	src = s
	seedChat(t, db, "c1", "u1", "u2")

	// Queue rows without triggering drains.
	src.Set(false)
	first := enqueue(t, q, "c1", "first")
	enqueue(t, q, "c1", "second")
	src.Set(true)

	q.Drain(context.Background())

	got := p.order()
	if len(got) != 1 || got[0] != first {
		t.Fatalf("expected drain to stop after the link dropped, pushed %v", got)
	}
	n, err := db.OutboxCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("second row should stay queued, %d left", n)
	}
}

func TestReconnectTriggersDrain(t *testing.T) {
	p := &recordingPusher{}
	q, db, src, _ := testQueue(t, false, p)
	seedChat(t, db, "c1", "u1", "u2")
	enqueue(t, q, "c1", "queued while offline")

	q.Start(context.Background())
	defer q.Stop()
	src.Set(true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := db.OutboxCount()
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reconnect did not drain the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartDrainsExistingBacklog(t *testing.T) {
	p := &recordingPusher{}
	q, db, _, _ := testQueue(t, true, p)
	seedChat(t, db, "c1", "u1", "u2")

	// Simulate rows left over from an earlier run.
	item := &store.QueueItem{LocalID: "stale", ChatID: "c1", SenderID: "u1", Type: store.MessageText, Content: "old"}
	if err := db.InsertLocalMessage(item.AsMessage()); err != nil {
		t.Fatal(err)
	}
	if err := db.EnqueueOutbox(item); err != nil {
		t.Fatal(err)
	}

	q.Start(context.Background())
	defer q.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := db.OutboxCount()
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup drain never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
