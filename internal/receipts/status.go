// Package receipts tracks per-recipient delivered/read state and derives
// the display status of a message from it.
package receipts

import "github.com/parlochat/parlo/internal/store"

// ComputeStatus derives the display status of a message. It is stateless
// and recomputed on every read: receipt sets mutate independently of the
// entity sync path, so a cached status goes stale.
//
// Inbound messages always read as sent; the rest of the ladder applies to
// the viewer's own messages only.
func ComputeStatus(m *store.Message, currentUID string) string {
	if m.SenderID != currentUID {
		return store.StatusSent
	}
	if m.MsgID == "" {
		return store.StatusSending
	}
	if len(m.ReadBy) > 0 {
		return store.StatusRead
	}
	if len(m.DeliveredTo) > 0 {
		return store.StatusDelivered
	}
	return store.StatusSent
}
