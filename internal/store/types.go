package store

// Message statuses. Sending means the message exists only locally; the
// other three are derived from the remote id and receipt sets, see the
// receipts package.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Chat types.
const (
	ChatOneToOne = "one_to_one"
	ChatGroup    = "group"
)

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// User is the local cache copy of a remote user document.
type User struct {
	UID         string
	Email       string
	DisplayName string
	CreatedAt   int64
	LastSeen    int64
	IsOnline    bool
	FCMToken    string
}

// Chat is the local cache copy of a remote chat document.
// ParticipantIDs is the canonical ordered participant set; it is written
// to chat_participants rows together with the chat row in one transaction.
type Chat struct {
	ID                  string
	Type                string
	Name                string
	CreatedAt           int64
	LastMessageContent  string
	LastMessageSenderID string
	LastMessageAt       int64
	LastMessageType     string
	ParticipantIDs      []string
	UnreadCounts        map[string]int
}

// Message is a locally stored message. MsgID is the remote-assigned id,
// empty while the message exists only locally; LocalID is the
// client-generated correlation id used for optimistic rows and queue dedup.
// DeliveredTo and ReadBy are hydrated from receipt rows on demand.
type Message struct {
	Seq         int64
	MsgID       string
	LocalID     string
	ChatID      string
	SenderID    string
	Type        string
	Content     string
	Timestamp   int64
	Status      string
	ImageWidth  int64
	ImageHeight int64
	ImageSize   int64
	DeliveredTo []string
	ReadBy      []string
}

// Receipt is one user's delivered/read state for a message.
type Receipt struct {
	UserID    string
	Delivered bool
	Read      bool
}

// QueueItem is a persisted outbound message awaiting remote confirmation.
type QueueItem struct {
	LocalID     string
	ChatID      string
	SenderID    string
	Type        string
	Content     string
	Timestamp   int64
	ImageWidth  int64
	ImageHeight int64
	ImageSize   int64
	Attempt     int
	LastError   string
	EnqueuedAt  int64
}

// AsMessage converts a queue item back into the message payload to send.
func (q *QueueItem) AsMessage() *Message {
	return &Message{
		LocalID:     q.LocalID,
		ChatID:      q.ChatID,
		SenderID:    q.SenderID,
		Type:        q.Type,
		Content:     q.Content,
		Timestamp:   q.Timestamp,
		Status:      StatusSending,
		ImageWidth:  q.ImageWidth,
		ImageHeight: q.ImageHeight,
		ImageSize:   q.ImageSize,
	}
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
