package receipts

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/parlochat/parlo/internal/bus"
	"github.com/parlochat/parlo/internal/remote"
	"github.com/parlochat/parlo/internal/store"
)

// Update is the bus payload for a receipt change.
type Update struct {
	ChatID string
	MsgID  string
}

// Tracker mirrors delivery state between the local receipt rows and the
// remote. Marks go remote first: the remote is the source of truth, and a
// local row written for a failed remote mark would lie to the sender.
type Tracker struct {
	uid     string
	db      *store.DB
	remote  remote.Store
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration
}

// NewTracker builds a tracker marking receipts on behalf of uid.
func NewTracker(uid string, db *store.DB, rs remote.Store, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Tracker {
	return &Tracker{uid: uid, db: db, remote: rs, bus: b, logger: logger, timeout: timeout}
}

func (t *Tracker) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

// MarkDelivered records that this device received msgID.
func (t *Tracker) MarkDelivered(ctx context.Context, chatID, msgID string) error {
	cctx, cancel := t.opCtx(ctx)
	defer cancel()
	if err := t.remote.MarkDelivered(cctx, chatID, msgID, t.uid); err != nil {
		return err
	}
	if err := t.db.SetReceipt(chatID, msgID, t.uid, true, false); err != nil {
		return err
	}
	t.publish(chatID, msgID)
	return nil
}

// MarkRead records that this device's user read msgID. Reading implies
// delivery.
func (t *Tracker) MarkRead(ctx context.Context, chatID, msgID string) error {
	cctx, cancel := t.opCtx(ctx)
	defer cancel()
	if err := t.remote.MarkRead(cctx, chatID, msgID, t.uid); err != nil {
		return err
	}
	if err := t.db.SetReceipt(chatID, msgID, t.uid, true, true); err != nil {
		return err
	}
	t.publish(chatID, msgID)
	return nil
}

// Refresh replaces the local receipt rows of msgID with the remote
// delivery state.
func (t *Tracker) Refresh(ctx context.Context, chatID, msgID string) error {
	cctx, cancel := t.opCtx(ctx)
	defer cancel()
	states, err := t.remote.GetDeliveryState(cctx, chatID, msgID)
	if err != nil {
		return err
	}

	uids := make([]string, 0, len(states))
	for uid := range states {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	rows := make([]store.Receipt, 0, len(uids))
	for _, uid := range uids {
		s := states[uid]
		rows = append(rows, store.Receipt{UserID: uid, Delivered: s.Delivered, Read: s.Read})
	}
	if err := t.db.ReplaceReceipts(chatID, msgID, rows); err != nil {
		return err
	}
	t.publish(chatID, msgID)
	return nil
}

// StatusFor hydrates m's receipt sets and derives its display status.
func (t *Tracker) StatusFor(m *store.Message) (string, error) {
	if err := t.db.HydrateReceipts(m); err != nil {
		return "", err
	}
	return ComputeStatus(m, t.uid), nil
}

func (t *Tracker) publish(chatID, msgID string) {
	t.bus.Publish(bus.Event{
		Kind:      bus.KindReceiptUpdated,
		Timestamp: time.Now(),
		Payload:   Update{ChatID: chatID, MsgID: msgID},
	})
}
