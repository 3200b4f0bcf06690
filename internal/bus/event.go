package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the engine packages. Subscribers typically
// filter on a prefix ("message.", "client.", "queue.").
const (
	KindMessageUpserted = "message.upserted"
	KindMessageSendAck  = "message.send_ack"
	KindMessageFailed   = "message.send_failed"
	KindChatUpserted    = "chat.upserted"
	KindReceiptUpdated  = "receipt.updated"
	KindInitialSyncDone = "sync.initial_done"
	KindQueueDrained    = "queue.drained"
	KindStatusChanged   = "client.status_changed"
	KindConnectivity    = "client.connectivity"
)
