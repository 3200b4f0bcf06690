// Package sync mirrors the remote document store into the local cache.
// Rows are written in dependency order (users, then chats, then messages)
// so foreign keys hold, and every write is an idempotent upsert so
// re-delivered documents are harmless.
package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parlochat/parlo/internal/bus"
	"github.com/parlochat/parlo/internal/remote"
	"github.com/parlochat/parlo/internal/store"
)

// Engine drives both sync directions: remote documents into the local
// store, and locally queued messages out to the remote.
type Engine struct {
	uid     string
	db      *store.DB
	remote  remote.Store
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	msgSubs map[string]remote.Unsub
}

// NewEngine builds an engine syncing on behalf of uid. timeout bounds
// each individual remote call.
func NewEngine(uid string, db *store.DB, rs remote.Store, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Engine {
	return &Engine{
		uid:     uid,
		db:      db,
		remote:  rs,
		bus:     b,
		logger:  logger,
		timeout: timeout,
		msgSubs: make(map[string]remote.Unsub),
	}
}

func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// SyncUserToLocal fetches one remote user document and upserts it into
// the local cache.
func (e *Engine) SyncUserToLocal(ctx context.Context, uid string) error {
	cctx, cancel := e.opCtx(ctx)
	defer cancel()
	u, err := e.remote.GetUser(cctx, uid)
	if err != nil {
		return err
	}
	return e.db.UpsertUser(&store.User{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		LastSeen:    u.LastSeen,
		IsOnline:    u.IsOnline,
		FCMToken:    u.FCMToken,
	})
}

// SyncChatToLocal upserts a remote chat document. The caller must have
// ensured every participant's user row already exists locally; use
// SyncChatWithParticipants when that is not known.
func (e *Engine) SyncChatToLocal(c *remote.Chat) error {
	lc := localChat(c)
	if err := e.db.UpsertChat(lc); err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.KindChatUpserted, Timestamp: time.Now(), Payload: lc})
	return nil
}

// SyncChatWithParticipants syncs every participant's user document,
// including the signed-in user's own, then the chat itself, so the
// participant foreign keys hold. Participants whose user document no
// longer exists are dropped from the local row rather than failing the
// whole chat.
func (e *Engine) SyncChatWithParticipants(ctx context.Context, c *remote.Chat) error {
	kept := make([]string, 0, len(c.Participants))
	for _, uid := range c.Participants {
		if err := e.SyncUserToLocal(ctx, uid); err != nil {
			if remote.IsNotFound(err) {
				e.logger.Warn("chat references missing user, dropping participant",
					zap.String("chat", c.ID), zap.String("user", uid))
				continue
			}
			return err
		}
		kept = append(kept, uid)
	}

	cc := *c
	cc.Participants = kept
	return e.SyncChatToLocal(&cc)
}

// SyncMessageToLocal upserts one remote message. A foreign key miss means
// the chat or sender has not been cached yet (subscription races the chat
// list); the missing dependency is backfilled from the remote and the
// upsert retried once.
func (e *Engine) SyncMessageToLocal(ctx context.Context, msg *remote.Message) error {
	lm := localMessage(msg)
	err := e.db.UpsertMessage(lm)
	if store.IsConstraint(err) {
		if berr := e.backfillMessageDeps(ctx, msg); berr != nil {
			return multierr.Append(err, berr)
		}
		err = e.db.UpsertMessage(lm)
	}
	if err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Timestamp: time.Now(), Payload: lm})
	return nil
}

func (e *Engine) backfillMessageDeps(ctx context.Context, msg *remote.Message) error {
	chat, err := e.db.GetChat(msg.ChatID)
	if err != nil {
		return err
	}
	if chat == nil {
		cctx, cancel := e.opCtx(ctx)
		rc, err := e.remote.GetChat(cctx, msg.ChatID)
		cancel()
		if err != nil {
			return err
		}
		if err := e.SyncChatWithParticipants(ctx, rc); err != nil {
			return err
		}
	}
	// The sender is not guaranteed to be a fetched participant.
	return e.SyncUserToLocal(ctx, msg.SenderID)
}

// InitialSync pulls the signed-in user, their chat list and each chat's
// recent backlog into the local cache. Chats fail independently: one bad
// chat does not abort its siblings, and the errors are aggregated.
func (e *Engine) InitialSync(ctx context.Context) error {
	if err := e.SyncUserToLocal(ctx, e.uid); err != nil {
		return err
	}

	cctx, cancel := e.opCtx(ctx)
	chats, err := e.remote.GetUserChats(cctx, e.uid)
	cancel()
	if err != nil {
		return err
	}

	var errs error
	for _, c := range chats {
		if err := e.SyncChatWithParticipants(ctx, c); err != nil {
			e.logger.Error("initial sync of chat failed", zap.String("chat", c.ID), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	e.bus.Publish(bus.Event{Kind: bus.KindInitialSyncDone, Timestamp: time.Now()})
	return nil
}

// StartRealtimeSync subscribes to the user's chat list and, per chat, to
// its message stream. New chats gain subscriptions as they appear;
// departed chats lose theirs. The returned stop func tears everything
// down.
func (e *Engine) StartRealtimeSync(ctx context.Context) (func(), error) {
	unsubChats, err := e.remote.SubscribeUserChats(e.uid, func(chats []*remote.Chat) {
		e.onChatList(ctx, chats)
	})
	if err != nil {
		return nil, err
	}

	stop := func() {
		unsubChats()
		e.mu.Lock()
		for id, unsub := range e.msgSubs {
			unsub()
			delete(e.msgSubs, id)
		}
		e.mu.Unlock()
	}
	return stop, nil
}

func (e *Engine) onChatList(ctx context.Context, chats []*remote.Chat) {
	current := make(map[string]bool, len(chats))
	for _, c := range chats {
		current[c.ID] = true
		if err := e.SyncChatWithParticipants(ctx, c); err != nil {
			e.logger.Error("chat sync failed", zap.String("chat", c.ID), zap.Error(err))
			continue
		}
		e.ensureMessageSub(ctx, c.ID)
	}

	e.mu.Lock()
	for id, unsub := range e.msgSubs {
		if !current[id] {
			unsub()
			delete(e.msgSubs, id)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) ensureMessageSub(ctx context.Context, chatID string) {
	e.mu.Lock()
	if _, ok := e.msgSubs[chatID]; ok {
		e.mu.Unlock()
		return
	}
	// Placeholder claims the slot so a concurrent list callback does not
	// double-subscribe while we hold no lock during Subscribe.
	e.msgSubs[chatID] = func() {}
	e.mu.Unlock()

	unsub, err := e.remote.SubscribeMessages(chatID, func(msg *remote.Message) {
		if err := e.SyncMessageToLocal(ctx, msg); err != nil {
			e.logger.Error("message sync failed",
				zap.String("chat", chatID), zap.String("msg", msg.ID), zap.Error(err))
		}
	})
	if err != nil {
		e.logger.Error("message subscription failed", zap.String("chat", chatID), zap.Error(err))
		e.mu.Lock()
		delete(e.msgSubs, chatID)
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.msgSubs[chatID] = unsub
	e.mu.Unlock()
}

// PushMessage sends one queued message and, on success, claims the
// optimistic local row by stamping the remote id onto it. The remote send
// is idempotent on the local id, so a retry after an ambiguous network
// failure cannot duplicate the message.
func (e *Engine) PushMessage(ctx context.Context, q *store.QueueItem) error {
	cctx, cancel := e.opCtx(ctx)
	defer cancel()

	lm := q.AsMessage()
	remoteID, err := e.remote.SendMessage(cctx, &remote.Message{
		LocalID:     lm.LocalID,
		ChatID:      lm.ChatID,
		SenderID:    lm.SenderID,
		Type:        lm.Type,
		Content:     lm.Content,
		Timestamp:   lm.Timestamp,
		ImageWidth:  lm.ImageWidth,
		ImageHeight: lm.ImageHeight,
		ImageSize:   lm.ImageSize,
	})
	if err != nil {
		return err
	}
	return e.db.MarkMessageSent(q.LocalID, remoteID)
}

func localChat(c *remote.Chat) *store.Chat {
	lc := &store.Chat{
		ID:             c.ID,
		Type:           c.Type,
		Name:           c.Name,
		CreatedAt:      c.CreatedAt,
		ParticipantIDs: c.Participants,
		UnreadCounts:   c.UnreadCounts,
	}
	if c.LastMessage != nil {
		lc.LastMessageContent = c.LastMessage.Content
		lc.LastMessageSenderID = c.LastMessage.SenderID
		lc.LastMessageAt = c.LastMessage.Timestamp
		lc.LastMessageType = c.LastMessage.Type
	}
	return lc
}

func localMessage(msg *remote.Message) *store.Message {
	// Any message with a remote id is at least sent; the receipts package
	// refines outbound statuses from delivery state.
	status := store.StatusSending
	if msg.ID != "" {
		status = store.StatusSent
	}
	return &store.Message{
		MsgID:       msg.ID,
		LocalID:     msg.LocalID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Type:        msg.Type,
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
		Status:      status,
		ImageWidth:  msg.ImageWidth,
		ImageHeight: msg.ImageHeight,
		ImageSize:   msg.ImageSize,
	}
}
