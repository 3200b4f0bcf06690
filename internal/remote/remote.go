// Package remote defines the contract of the authoritative remote store:
// a document/key-path store with per-collection CRUD and change
// subscriptions. Writes are field-level last-write-wins and there are no
// cross-collection transactions; dependency ordering between users, chats
// and messages is the sync engine's responsibility, not the remote's.
package remote

import "context"

// User is the remote user document.
type User struct {
	UID         string
	Email       string
	DisplayName string
	CreatedAt   int64
	LastSeen    int64
	IsOnline    bool
	FCMToken    string
}

// LastMessage is the chat-level preview of the most recent message.
type LastMessage struct {
	Content   string
	SenderID  string
	Timestamp int64
	Type      string
}

// Chat is the remote chat document. Participants is the canonical ordered
// participant set; stores that persist it as a uid→true map convert at
// this boundary (see EncodeParticipants/DecodeParticipants).
type Chat struct {
	ID           string
	Type         string
	Name         string
	Participants []string
	CreatedAt    int64
	LastMessage  *LastMessage
	UnreadCounts map[string]int
}

// Message is the remote message document. LocalID is the client-generated
// correlation id; SendMessage treats it as an idempotency key.
type Message struct {
	ID          string
	LocalID     string
	ChatID      string
	SenderID    string
	Type        string
	Content     string
	Timestamp   int64
	ImageWidth  int64
	ImageHeight int64
	ImageSize   int64
}

// DeliveryState is one recipient's delivered/read state for a message.
type DeliveryState struct {
	Delivered bool
	Read      bool
}

// Unsub cancels a subscription. Callers must invoke it on teardown so a
// torn-down local store no longer receives callbacks.
type Unsub func()

// Store is the remote store contract consumed by the sync engine, queue
// and receipt tracker. All blocking calls take a context and implementors
// are expected to return *NetworkError for transport failures and *Error
// for remote-side rejections.
type Store interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	PutUser(ctx context.Context, u *User) error

	GetChat(ctx context.Context, id string) (*Chat, error)
	PutChat(ctx context.Context, c *Chat) error
	// UpdateChat applies a field-level last-write-wins partial update.
	UpdateChat(ctx context.Context, id string, fields map[string]any) error
	GetUserChats(ctx context.Context, uid string) ([]*Chat, error)

	// SubscribeUserChats emits the full chat list for uid, immediately on
	// subscribe and again on every change.
	SubscribeUserChats(uid string, fn func([]*Chat)) (Unsub, error)
	// SubscribeUser emits the user document, immediately if it exists and
	// again on every change.
	SubscribeUser(uid string, fn func(*User)) (Unsub, error)

	// SendMessage persists a message and returns the remote-assigned id.
	// Idempotent on (ChatID, LocalID): resending a message whose LocalID
	// was already persisted returns the existing id without duplicating.
	SendMessage(ctx context.Context, m *Message) (string, error)
	// SubscribeMessages emits every existing message of the chat on
	// subscribe, then each new or updated message.
	SubscribeMessages(chatID string, fn func(*Message)) (Unsub, error)

	MarkDelivered(ctx context.Context, chatID, msgID, uid string) error
	MarkRead(ctx context.Context, chatID, msgID, uid string) error
	GetDeliveryState(ctx context.Context, chatID, msgID string) (map[string]DeliveryState, error)
}
