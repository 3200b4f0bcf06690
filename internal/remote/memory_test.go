package remote

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryUserRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetUser(ctx, "u1"); !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := m.PutUser(ctx, &User{UID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	u, err := m.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.DisplayName != "Alice" {
		t.Fatalf("got %q", u.DisplayName)
	}
}

func TestMemorySendMessageIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	msg := &Message{LocalID: "l1", ChatID: "c1", SenderID: "u1", Content: "hi", Timestamp: 10}
	id1, err := m.SendMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := m.SendMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("resend produced a new id: %s vs %s", id1, id2)
	}
	if got := len(m.MessagesIn("c1")); got != 1 {
		t.Fatalf("expected 1 stored message, got %d", got)
	}
}

func TestMemorySubscribeMessagesEmitsBacklog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, content := range []string{"a", "b"} {
		if _, err := m.SendMessage(ctx, &Message{ChatID: "c1", SenderID: "u1", Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	unsub, err := m.SubscribeMessages("c1", func(msg *Message) {
		got = append(got, msg.Content)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if _, err := m.SendMessage(ctx, &Message{ChatID: "c1", SenderID: "u1", Content: "c"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	unsub()
	if _, err := m.SendMessage(ctx, &Message{ChatID: "c1", SenderID: "u1", Content: "d"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("callback fired after unsubscribe: %v", got)
	}
}

func TestMemorySubscribeUserChats(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.PutChat(ctx, &Chat{ID: "c1", Type: "one_to_one", Participants: []string{"u1", "u2"}}); err != nil {
		t.Fatal(err)
	}

	var lists [][]*Chat
	unsub, err := m.SubscribeUserChats("u1", func(chats []*Chat) {
		lists = append(lists, chats)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if len(lists) != 1 || len(lists[0]) != 1 {
		t.Fatalf("expected immediate emission of existing chat, got %v", lists)
	}

	// A chat u1 is not in must not fire u1's subscription.
	if err := m.PutChat(ctx, &Chat{ID: "c2", Participants: []string{"u2", "u3"}}); err != nil {
		t.Fatal(err)
	}
	if len(lists) != 1 {
		t.Fatalf("notified about an unrelated chat: %v", lists)
	}

	if err := m.PutChat(ctx, &Chat{ID: "c3", Participants: []string{"u1", "u3"}}); err != nil {
		t.Fatal(err)
	}
	if len(lists) != 2 || len(lists[1]) != 2 {
		t.Fatalf("expected updated two-chat list, got %v", lists)
	}
}

func TestMemoryUpdateChatPartial(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.PutChat(ctx, &Chat{ID: "c1", Name: "old", Participants: []string{"u1"}}); err != nil {
		t.Fatal(err)
	}
	err := m.UpdateChat(ctx, "c1", map[string]any{
		"name":           "new",
		"participantIds": map[string]any{"u1": true, "u2": true},
		"bogus":          42,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.GetChat(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "new" {
		t.Fatalf("name not updated: %q", c.Name)
	}
	if len(c.Participants) != 2 {
		t.Fatalf("participants not updated: %v", c.Participants)
	}
	if err := m.UpdateChat(ctx, "missing", map[string]any{"name": "x"}); !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestMemoryDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.MarkDelivered(ctx, "c1", "m1", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkRead(ctx, "c1", "m1", "u3"); err != nil {
		t.Fatal(err)
	}
	states, err := m.GetDeliveryState(ctx, "c1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if s := states["u2"]; !s.Delivered || s.Read {
		t.Fatalf("u2 state: %+v", s)
	}
	if s := states["u3"]; !s.Delivered || !s.Read {
		t.Fatalf("u3 state: %+v", s)
	}
}

func TestMemoryFailWith(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := &NetworkError{Timeout: true, Err: errors.New("simulated outage")}

	m.FailWith(boom)
	if _, err := m.SendMessage(ctx, &Message{ChatID: "c1"}); !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if err := m.PutUser(ctx, &User{UID: "u1"}); !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}

	m.FailWith(nil)
	if _, err := m.SendMessage(ctx, &Message{ChatID: "c1"}); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}
