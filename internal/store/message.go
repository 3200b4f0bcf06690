package store

import (
	"database/sql"
	"time"
)

// InsertLocalMessage writes the optimistic local row for an outbound
// message that has no remote id yet. Re-enqueueing the same local id
// updates the row in place instead of duplicating it.
func (db *DB) InsertLocalMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, local_id, chat_id, sender_id, type, content, timestamp, status,
			image_width, image_height, image_size, created_at)
		VALUES ('', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) WHERE local_id != '' DO UPDATE SET
			content = excluded.content,
			timestamp = excluded.timestamp,
			status = excluded.status`,
		m.LocalID, m.ChatID, m.SenderID, m.Type, m.Content, m.Timestamp, StatusSending,
		m.ImageWidth, m.ImageHeight, m.ImageSize, now)
	return db.refineMessageErr(wrapErr("messages", err), m)
}

// UpsertMessage writes a remote message, idempotently. If the message
// carries a local correlation id and an optimistic row exists for it, that
// row is claimed (assigned the remote id) rather than duplicated; otherwise
// the row is upserted by remote id with remote field values winning.
func (db *DB) UpsertMessage(m *Message) error {
	if m.LocalID != "" && m.MsgID != "" {
		claimed, err := db.claimLocalRow(m)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
	}

	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, local_id, chat_id, sender_id, type, content, timestamp, status,
			image_width, image_height, image_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) WHERE msg_id != '' DO UPDATE SET
			content = excluded.content,
			type = excluded.type,
			timestamp = excluded.timestamp,
			status = excluded.status`,
		m.MsgID, m.LocalID, m.ChatID, m.SenderID, m.Type, m.Content, m.Timestamp, m.Status,
		m.ImageWidth, m.ImageHeight, m.ImageSize, now)
	return db.refineMessageErr(wrapErr("messages", err), m)
}

// claimLocalRow assigns the remote id to an existing optimistic row.
// If the remote id already exists on another row (the subscription fan-out
// beat the send acknowledgement), the optimistic row is dropped in favor
// of the remote copy.
func (db *DB) claimLocalRow(m *Message) (bool, error) {
	res, err := db.Exec(`
		UPDATE messages SET msg_id = ?, content = ?, type = ?, timestamp = ?, status = ?
		WHERE local_id = ? AND msg_id IN ('', ?)`,
		m.MsgID, m.Content, m.Type, m.Timestamp, m.Status, m.LocalID, m.MsgID)
	if err == nil {
		n, _ := res.RowsAffected()
		return n > 0, nil
	}
	werr := wrapErr("messages", err)
	if !IsConstraint(werr) {
		return false, werr
	}
	if _, err := db.Exec(`DELETE FROM messages WHERE local_id = ? AND msg_id = ''`, m.LocalID); err != nil {
		return false, wrapErr("messages", err)
	}
	return false, nil
}

// MarkMessageSent records remote acknowledgement of an outbound message:
// the optimistic row gets its remote id and moves to status sent.
func (db *DB) MarkMessageSent(localID, msgID string) error {
	_, err := db.Exec(`
		UPDATE messages SET msg_id = ?, status = ? WHERE local_id = ? AND msg_id = ''`,
		msgID, StatusSent, localID)
	if err == nil {
		// Zero rows affected means the fan-out path already claimed the row.
		return nil
	}
	werr := wrapErr("messages", err)
	if IsConstraint(werr) {
		// The remote copy arrived first; drop the duplicate optimistic row.
		_, err := db.Exec(`DELETE FROM messages WHERE local_id = ? AND msg_id = ''`, localID)
		return wrapErr("messages", err)
	}
	return werr
}

// GetMessage returns a message by remote id, or nil when not cached.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	return db.getMessage(`msg_id`, msgID)
}

// GetMessageByLocalID returns a message by local correlation id, or nil.
func (db *DB) GetMessageByLocalID(localID string) (*Message, error) {
	return db.getMessage(`local_id`, localID)
}

func (db *DB) getMessage(col, key string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT seq, msg_id, local_id, chat_id, sender_id, type, content, timestamp, status,
			image_width, image_height, image_size
		FROM messages WHERE `+col+` = ?`, key).
		Scan(&m.Seq, &m.MsgID, &m.LocalID, &m.ChatID, &m.SenderID, &m.Type, &m.Content,
			&m.Timestamp, &m.Status, &m.ImageWidth, &m.ImageHeight, &m.ImageSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("messages", err)
	}
	return &m, nil
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT seq, msg_id, local_id, chat_id, sender_id, type, content, timestamp, status,
			image_width, image_height, image_size
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, wrapErr("messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.MsgID, &m.LocalID, &m.ChatID, &m.SenderID, &m.Type,
			&m.Content, &m.Timestamp, &m.Status, &m.ImageWidth, &m.ImageHeight, &m.ImageSize); err != nil {
			return nil, wrapErr("messages", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, wrapErr("messages", rows.Err())
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, wrapErr("messages", err)
}

// refineMessageErr attributes a message FK violation to chats or users by
// probing which dependency is missing. SQLite only reports a generic
// "FOREIGN KEY constraint failed".
func (db *DB) refineMessageErr(err error, m *Message) error {
	if err == nil || !IsConstraint(err) {
		return err
	}
	if c, cerr := db.GetChat(m.ChatID); cerr == nil && c == nil {
		return withRef(err, "chats")
	}
	if u, uerr := db.GetUser(m.SenderID); uerr == nil && u == nil {
		return withRef(err, "users")
	}
	return err
}
