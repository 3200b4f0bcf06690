// Package outbox is the persistent outbound message queue. A send is
// first an optimistic local row plus a queue row, both durable, then a
// background drain pushes queued rows to the remote in enqueue order.
package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlochat/parlo/internal/bus"
	"github.com/parlochat/parlo/internal/remote"
	"github.com/parlochat/parlo/internal/store"
)

// Pusher sends one queued message to the remote and claims the local row
// on success. Implemented by the sync engine.
type Pusher interface {
	PushMessage(ctx context.Context, q *store.QueueItem) error
}

// OnlineChecker answers and watches link state. Implemented by the
// connectivity monitor.
type OnlineChecker interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// Queue drains the persisted outbox. Draining is single-flight: a drain
// triggered while one runs is absorbed by the running pass re-reading
// pending rows.
type Queue struct {
	db      *store.DB
	pusher  Pusher
	monitor OnlineChecker
	bus     *bus.Bus
	logger  *zap.Logger

	draining atomic.Bool
	unsub    func()
}

// NewQueue builds a queue over the persisted outbox.
func NewQueue(db *store.DB, pusher Pusher, monitor OnlineChecker, b *bus.Bus, logger *zap.Logger) *Queue {
	return &Queue{db: db, pusher: pusher, monitor: monitor, bus: b, logger: logger}
}

// Start wires the queue to connectivity. The subscription fires
// immediately with the current state, which covers both startup recovery
// of rows queued in an earlier run and later reconnects.
func (q *Queue) Start(ctx context.Context) {
	q.unsub = q.monitor.Subscribe(func(online bool) {
		if online {
			go q.Drain(ctx)
		}
	})
}

// Stop detaches the queue from connectivity. A drain already in flight
// finishes its current item and then observes the offline state or
// context.
func (q *Queue) Stop() {
	if q.unsub != nil {
		q.unsub()
		q.unsub = nil
	}
}

// Enqueue persists msg as an optimistic local row plus a queue row, then
// kicks a drain if the link is up. The message is assigned a local id;
// both rows survive a crash, so an accepted Enqueue is a durable send.
func (q *Queue) Enqueue(ctx context.Context, msg *store.Message) (string, error) {
	if msg.LocalID == "" {
		msg.LocalID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	msg.Status = store.StatusSending

	if err := q.db.InsertLocalMessage(msg); err != nil {
		return "", err
	}
	item := &store.QueueItem{
		LocalID:     msg.LocalID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Type:        msg.Type,
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
		ImageWidth:  msg.ImageWidth,
		ImageHeight: msg.ImageHeight,
		ImageSize:   msg.ImageSize,
	}
	if err := q.db.EnqueueOutbox(item); err != nil {
		return "", err
	}
	q.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Timestamp: time.Now(), Payload: msg})

	if q.monitor.IsOnline() {
		go q.Drain(ctx)
	}
	return msg.LocalID, nil
}

// Drain pushes pending rows in enqueue order until the queue is empty,
// the link drops, or the context ends. Only one drain runs at a time.
// A network failure stops the pass and leaves the row queued; any other
// failure records the error on the row and moves on.
func (q *Queue) Drain(ctx context.Context) {
	if !q.draining.CompareAndSwap(false, true) {
		return
	}
	defer q.draining.Store(false)

	delivered := 0
	for {
		items, err := q.db.PendingOutbox()
		if err != nil {
			q.logger.Error("outbox read failed", zap.Error(err))
			return
		}
		if len(items) == 0 {
			if delivered > 0 {
				q.bus.Publish(bus.Event{Kind: bus.KindQueueDrained, Timestamp: time.Now(), Payload: delivered})
			}
			return
		}

		progressed := false
		for i := range items {
			item := &items[i]
			if ctx.Err() != nil {
				return
			}
			if !q.monitor.IsOnline() {
				q.logger.Info("link down, pausing drain",
					zap.Int("pending", len(items)-i))
				return
			}

			err := q.pusher.PushMessage(ctx, item)
			if err == nil {
				if derr := q.db.DeleteOutbox(item.LocalID); derr != nil {
					q.logger.Error("dequeue failed", zap.String("local_id", item.LocalID), zap.Error(derr))
					return
				}
				progressed = true
				delivered++
				q.bus.Publish(bus.Event{Kind: bus.KindMessageSendAck, Timestamp: time.Now(), Payload: item.LocalID})
				continue
			}

			if merr := q.db.MarkOutboxAttempt(item.LocalID, err.Error()); merr != nil {
				q.logger.Error("attempt record failed", zap.String("local_id", item.LocalID), zap.Error(merr))
			}
			if remote.IsNetwork(err) {
				// Transient: the row stays queued for the next drain.
				q.logger.Warn("send hit the network, pausing drain",
					zap.String("local_id", item.LocalID), zap.Error(err))
				return
			}
			// Permanent rejection of this row; its siblings still get a try.
			q.logger.Error("send rejected", zap.String("local_id", item.LocalID), zap.Error(err))
			q.bus.Publish(bus.Event{Kind: bus.KindMessageFailed, Timestamp: time.Now(), Payload: item.LocalID})
		}

		if !progressed {
			// Every remaining row is failing permanently; do not spin.
			return
		}
		// Re-read so rows enqueued during this pass get drained too.
	}
}

// Pending returns the number of queued rows.
func (q *Queue) Pending() (int64, error) {
	return q.db.OutboxCount()
}
