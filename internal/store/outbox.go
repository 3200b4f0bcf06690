package store

import "time"

// EnqueueOutbox persists an outbound queue item keyed by its local id.
// Enqueueing the same local id again updates the payload in place instead
// of duplicating, and resets its retry state.
func (db *DB) EnqueueOutbox(q *QueueItem) error {
	now := time.Now().UnixMilli()
	if q.EnqueuedAt == 0 {
		q.EnqueuedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO outbox (local_id, chat_id, sender_id, type, content, timestamp,
			image_width, image_height, image_size, attempt, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			content = excluded.content,
			type = excluded.type,
			timestamp = excluded.timestamp,
			image_width = excluded.image_width,
			image_height = excluded.image_height,
			image_size = excluded.image_size,
			attempt = 0,
			last_error = '',
			updated_at = excluded.updated_at`,
		q.LocalID, q.ChatID, q.SenderID, q.Type, q.Content, q.Timestamp,
		q.ImageWidth, q.ImageHeight, q.ImageSize, q.EnqueuedAt, now)
	return wrapErr("outbox", err)
}

// PendingOutbox returns all queue items in enqueue order (FIFO).
func (db *DB) PendingOutbox() ([]QueueItem, error) {
	rows, err := db.Query(`
		SELECT local_id, chat_id, sender_id, type, content, timestamp,
			image_width, image_height, image_size, attempt, last_error, enqueued_at
		FROM outbox ORDER BY enqueued_at ASC, rowid ASC`)
	if err != nil {
		return nil, wrapErr("outbox", err)
	}
	defer func() { _ = rows.Close() }()

	var items []QueueItem
	for rows.Next() {
		var q QueueItem
		if err := rows.Scan(&q.LocalID, &q.ChatID, &q.SenderID, &q.Type, &q.Content, &q.Timestamp,
			&q.ImageWidth, &q.ImageHeight, &q.ImageSize, &q.Attempt, &q.LastError, &q.EnqueuedAt); err != nil {
			return nil, wrapErr("outbox", err)
		}
		items = append(items, q)
	}
	return items, wrapErr("outbox", rows.Err())
}

// MarkOutboxAttempt records a failed send attempt. The item stays queued;
// the next drain trigger retries it.
func (db *DB) MarkOutboxAttempt(localID, lastError string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET attempt = attempt + 1, last_error = ?, updated_at = ?
		WHERE local_id = ?`, lastError, now, localID)
	return wrapErr("outbox", err)
}

// DeleteOutbox removes a queue item after confirmed remote persistence.
// Removal is the only terminal state; failures never delete.
func (db *DB) DeleteOutbox(localID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE local_id = ?`, localID)
	return wrapErr("outbox", err)
}

// OutboxCount returns the number of queued items.
func (db *DB) OutboxCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&count)
	return count, wrapErr("outbox", err)
}
