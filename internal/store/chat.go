package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertChat inserts or fully overwrites a chat row and replaces its
// participant rows, all in one transaction so no concurrent reader can
// observe a chat with half its participants. Every uid in ParticipantIDs
// must already exist in users or the whole write rolls back with a
// constraint error referencing the users table.
func (db *DB) UpsertChat(c *Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return wrapErr("chats", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO chats (id, type, name, created_at, last_message_content, last_message_sender_id,
			last_message_at, last_message_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			created_at = excluded.created_at,
			last_message_content = excluded.last_message_content,
			last_message_sender_id = excluded.last_message_sender_id,
			last_message_at = excluded.last_message_at,
			last_message_type = excluded.last_message_type,
			updated_at = excluded.updated_at`,
		c.ID, c.Type, c.Name, c.CreatedAt, c.LastMessageContent, c.LastMessageSenderID,
		c.LastMessageAt, c.LastMessageType, now); err != nil {
		return wrapErr("chats", err)
	}

	if _, err := tx.Exec(`DELETE FROM chat_participants WHERE chat_id = ?`, c.ID); err != nil {
		return wrapErr("chat_participants", err)
	}
	for i, uid := range c.ParticipantIDs {
		unread := 0
		if c.UnreadCounts != nil {
			unread = c.UnreadCounts[uid]
		}
		if _, err := tx.Exec(`
			INSERT INTO chat_participants (chat_id, user_id, position, unread_count)
			VALUES (?, ?, ?, ?)`,
			c.ID, uid, i, unread); err != nil {
			return withRef(wrapErr("chat_participants", fmt.Errorf("participant %q: %w", uid, err)), "users")
		}
	}

	return wrapErr("chats", tx.Commit())
}

// GetChat returns a chat with its ordered participant ids and unread
// counts, or nil when not cached locally.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, type, name, created_at, last_message_content, last_message_sender_id,
			last_message_at, last_message_type
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Type, &c.Name, &c.CreatedAt, &c.LastMessageContent,
			&c.LastMessageSenderID, &c.LastMessageAt, &c.LastMessageType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("chats", err)
	}

	participants, counts, err := db.participants(c.ID)
	if err != nil {
		return nil, err
	}
	c.ParticipantIDs = participants
	c.UnreadCounts = counts
	return &c, nil
}

// Participants returns the ordered participant ids of a chat.
func (db *DB) Participants(chatID string) ([]string, error) {
	ids, _, err := db.participants(chatID)
	return ids, err
}

func (db *DB) participants(chatID string) ([]string, map[string]int, error) {
	rows, err := db.Query(`
		SELECT user_id, unread_count FROM chat_participants
		WHERE chat_id = ? ORDER BY position ASC`, chatID)
	if err != nil {
		return nil, nil, wrapErr("chat_participants", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	counts := make(map[string]int)
	for rows.Next() {
		var uid string
		var unread int
		if err := rows.Scan(&uid, &unread); err != nil {
			return nil, nil, wrapErr("chat_participants", err)
		}
		ids = append(ids, uid)
		counts[uid] = unread
	}
	return ids, counts, wrapErr("chat_participants", rows.Err())
}

// ListChats returns chats sorted by last message timestamp descending.
// Participant sets are not hydrated; use GetChat for a single chat.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, type, name, created_at, last_message_content, last_message_sender_id,
			last_message_at, last_message_type
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, wrapErr("chats", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &c.CreatedAt, &c.LastMessageContent,
			&c.LastMessageSenderID, &c.LastMessageAt, &c.LastMessageType); err != nil {
			return nil, wrapErr("chats", err)
		}
		chats = append(chats, c)
	}
	return chats, wrapErr("chats", rows.Err())
}

// ChatCount returns the total number of cached chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, wrapErr("chats", err)
}
