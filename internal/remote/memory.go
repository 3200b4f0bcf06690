package remote

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store implementation. It backs the loopback
// mode of parlod and every engine/queue test; FailWith simulates an
// outage so retry paths can be exercised without a real network.
type Memory struct {
	mu        sync.Mutex
	users     map[string]*User
	chats     map[string]*Chat
	chatOrder []string
	messages  map[string][]*Message
	delivery  map[string]map[string]DeliveryState

	subs    map[int]*memorySub
	nextSub int

	failErr error
}

type memorySub struct {
	// Exactly one of these is set.
	chatList func([]*Chat)
	user     func(*User)
	message  func(*Message)
	// Target: uid for chatList/user subs, chat id for message subs.
	key string
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		chats:    make(map[string]*Chat),
		messages: make(map[string][]*Message),
		delivery: make(map[string]map[string]DeliveryState),
		subs:     make(map[int]*memorySub),
	}
}

// FailWith forces every subsequent operation to return err until called
// again with nil. Used to simulate outages.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) checkLocked(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return m.failErr
}

// GetUser implements Store.
func (m *Memory) GetUser(ctx context.Context, uid string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	u, ok := m.users[uid]
	if !ok {
		return nil, NotFoundError("get user " + uid)
	}
	cp := *u
	return &cp, nil
}

// PutUser implements Store.
func (m *Memory) PutUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	if err := m.checkLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	cp := *u
	m.users[u.UID] = &cp
	notify := m.userNotificationsLocked(u.UID)
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// GetChat implements Store.
func (m *Memory) GetChat(ctx context.Context, id string) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	c, ok := m.chats[id]
	if !ok {
		return nil, NotFoundError("get chat " + id)
	}
	return copyChat(c), nil
}

// PutChat implements Store.
func (m *Memory) PutChat(ctx context.Context, c *Chat) error {
	m.mu.Lock()
	if err := m.checkLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, exists := m.chats[c.ID]; !exists {
		m.chatOrder = append(m.chatOrder, c.ID)
	}
	m.chats[c.ID] = copyChat(c)
	notify := m.chatNotificationsLocked(c.ID)
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// UpdateChat implements Store: a field-level last-write-wins partial
// update. Unknown fields are ignored.
func (m *Memory) UpdateChat(ctx context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	if err := m.checkLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	c, ok := m.chats[id]
	if !ok {
		m.mu.Unlock()
		return NotFoundError("update chat " + id)
	}
	for k, v := range fields {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				c.Name = s
			}
		case "type":
			if s, ok := v.(string); ok {
				c.Type = s
			}
		case "participantIds":
			if ids := DecodeParticipants(v); ids != nil {
				c.Participants = ids
			}
		case "unreadCounts":
			switch counts := v.(type) {
			case map[string]int:
				c.UnreadCounts = make(map[string]int, len(counts))
				for uid, n := range counts {
					c.UnreadCounts[uid] = n
				}
			}
		case "lastMessage":
			if lm, ok := v.(*LastMessage); ok {
				cp := *lm
				c.LastMessage = &cp
			}
		}
	}
	notify := m.chatNotificationsLocked(id)
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// GetUserChats implements Store.
func (m *Memory) GetUserChats(ctx context.Context, uid string) ([]*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	return m.userChatsLocked(uid), nil
}

// SubscribeUserChats implements Store. The current chat list is emitted
// synchronously before SubscribeUserChats returns.
func (m *Memory) SubscribeUserChats(uid string, fn func([]*Chat)) (Unsub, error) {
	m.mu.Lock()
	if err := m.checkLocked(nil); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	id := m.addSubLocked(&memorySub{chatList: fn, key: uid})
	initial := m.userChatsLocked(uid)
	m.mu.Unlock()

	fn(initial)
	return m.unsub(id), nil
}

// SubscribeUser implements Store. The current document, if any, is
// emitted synchronously before SubscribeUser returns.
func (m *Memory) SubscribeUser(uid string, fn func(*User)) (Unsub, error) {
	m.mu.Lock()
	if err := m.checkLocked(nil); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	id := m.addSubLocked(&memorySub{user: fn, key: uid})
	var initial *User
	if u, ok := m.users[uid]; ok {
		cp := *u
		initial = &cp
	}
	m.mu.Unlock()

	if initial != nil {
		fn(initial)
	}
	return m.unsub(id), nil
}

// SendMessage implements Store. Idempotent on (ChatID, LocalID): a resend
// of an already-persisted local id returns the existing remote id.
func (m *Memory) SendMessage(ctx context.Context, msg *Message) (string, error) {
	m.mu.Lock()
	if err := m.checkLocked(ctx); err != nil {
		m.mu.Unlock()
		return "", err
	}
	if msg.LocalID != "" {
		for _, existing := range m.messages[msg.ChatID] {
			if existing.LocalID == msg.LocalID {
				id := existing.ID
				m.mu.Unlock()
				return id, nil
			}
		}
	}
	cp := *msg
	cp.ID = uuid.NewString()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], &cp)

	if c, ok := m.chats[msg.ChatID]; ok {
		c.LastMessage = &LastMessage{
			Content:   msg.Content,
			SenderID:  msg.SenderID,
			Timestamp: msg.Timestamp,
			Type:      msg.Type,
		}
	}
	notify := m.messageNotificationsLocked(&cp)
	notify = append(notify, m.chatNotificationsLocked(msg.ChatID)...)
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return cp.ID, nil
}

// SubscribeMessages implements Store. Every existing message of the chat
// is emitted synchronously, in append order, before SubscribeMessages
// returns.
func (m *Memory) SubscribeMessages(chatID string, fn func(*Message)) (Unsub, error) {
	m.mu.Lock()
	if err := m.checkLocked(nil); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	id := m.addSubLocked(&memorySub{message: fn, key: chatID})
	initial := make([]*Message, 0, len(m.messages[chatID]))
	for _, msg := range m.messages[chatID] {
		cp := *msg
		initial = append(initial, &cp)
	}
	m.mu.Unlock()

	for _, msg := range initial {
		fn(msg)
	}
	return m.unsub(id), nil
}

// MarkDelivered implements Store.
func (m *Memory) MarkDelivered(ctx context.Context, chatID, msgID, uid string) error {
	return m.mark(ctx, chatID, msgID, uid, false)
}

// MarkRead implements Store. Reading implies delivery.
func (m *Memory) MarkRead(ctx context.Context, chatID, msgID, uid string) error {
	return m.mark(ctx, chatID, msgID, uid, true)
}

func (m *Memory) mark(ctx context.Context, chatID, msgID, uid string, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return err
	}
	key := chatID + "/" + msgID
	states := m.delivery[key]
	if states == nil {
		states = make(map[string]DeliveryState)
		m.delivery[key] = states
	}
	s := states[uid]
	s.Delivered = true
	if read {
		s.Read = true
	}
	states[uid] = s
	return nil
}

// GetDeliveryState implements Store.
func (m *Memory) GetDeliveryState(ctx context.Context, chatID, msgID string) (map[string]DeliveryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]DeliveryState)
	for uid, s := range m.delivery[chatID+"/"+msgID] {
		out[uid] = s
	}
	return out, nil
}

// MessagesIn returns the persisted messages of a chat in send order.
// Test helper for asserting remote-side outcomes.
func (m *Memory) MessagesIn(chatID string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, 0, len(m.messages[chatID]))
	for _, msg := range m.messages[chatID] {
		cp := *msg
		out = append(out, &cp)
	}
	return out
}

func (m *Memory) addSubLocked(s *memorySub) int {
	id := m.nextSub
	m.nextSub++
	m.subs[id] = s
	return id
}

func (m *Memory) unsub(id int) Unsub {
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Memory) userChatsLocked(uid string) []*Chat {
	var out []*Chat
	for _, id := range m.chatOrder {
		c := m.chats[id]
		for _, pid := range c.Participants {
			if pid == uid {
				out = append(out, copyChat(c))
				break
			}
		}
	}
	return out
}

// Notification builders snapshot payloads under the lock and return
// closures invoked after it is released, so a subscriber calling back
// into the store cannot deadlock.

func (m *Memory) userNotificationsLocked(uid string) []func() {
	var out []func()
	u := m.users[uid]
	if u == nil {
		return nil
	}
	for _, s := range m.subs {
		if s.user != nil && s.key == uid {
			cp := *u
			fn := s.user
			out = append(out, func() { fn(&cp) })
		}
	}
	return out
}

func (m *Memory) chatNotificationsLocked(chatID string) []func() {
	var out []func()
	c, ok := m.chats[chatID]
	if !ok {
		return nil
	}
	members := make(map[string]bool, len(c.Participants))
	for _, pid := range c.Participants {
		members[pid] = true
	}
	for _, s := range m.subs {
		if s.chatList == nil || !members[s.key] {
			continue
		}
		list := m.userChatsLocked(s.key)
		fn := s.chatList
		out = append(out, func() { fn(list) })
	}
	return out
}

func (m *Memory) messageNotificationsLocked(msg *Message) []func() {
	var out []func()
	for _, s := range m.subs {
		if s.message == nil || s.key != msg.ChatID {
			continue
		}
		cp := *msg
		fn := s.message
		out = append(out, func() { fn(&cp) })
	}
	return out
}

func copyChat(c *Chat) *Chat {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	if c.UnreadCounts != nil {
		cp.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
		for uid, n := range c.UnreadCounts {
			cp.UnreadCounts[uid] = n
		}
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}
