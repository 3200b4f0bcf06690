package store

import "time"

// SetReceipt records one user's delivered/read state for a message.
// Flags are monotonic: a later write never clears a set flag.
func (db *DB) SetReceipt(chatID, msgID, userID string, delivered, read bool) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO receipts (chat_id, msg_id, user_id, delivered, read_flag, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id, user_id) DO UPDATE SET
			delivered = MAX(receipts.delivered, excluded.delivered),
			read_flag = MAX(receipts.read_flag, excluded.read_flag),
			updated_at = excluded.updated_at`,
		chatID, msgID, userID, delivered, read, now)
	return withRef(wrapErr("receipts", err), "users")
}

// ReplaceReceipts overwrites every receipt row of a message with the given
// remote state, in one transaction. Remote wins: rows absent from the new
// state are removed.
func (db *DB) ReplaceReceipts(chatID, msgID string, states []Receipt) error {
	tx, err := db.Begin()
	if err != nil {
		return wrapErr("receipts", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM receipts WHERE chat_id = ? AND msg_id = ?`, chatID, msgID); err != nil {
		return wrapErr("receipts", err)
	}
	now := time.Now().UnixMilli()
	for _, s := range states {
		if _, err := tx.Exec(`
			INSERT INTO receipts (chat_id, msg_id, user_id, delivered, read_flag, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chatID, msgID, s.UserID, s.Delivered, s.Read, now); err != nil {
			return withRef(wrapErr("receipts", err), "users")
		}
	}
	return wrapErr("receipts", tx.Commit())
}

// ReceiptSets returns the ordered deliveredTo and readBy uid sets for a
// message.
func (db *DB) ReceiptSets(chatID, msgID string) (deliveredTo, readBy []string, err error) {
	rows, err := db.Query(`
		SELECT user_id, delivered, read_flag FROM receipts
		WHERE chat_id = ? AND msg_id = ? ORDER BY user_id ASC`, chatID, msgID)
	if err != nil {
		return nil, nil, wrapErr("receipts", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uid string
		var delivered, read bool
		if err := rows.Scan(&uid, &delivered, &read); err != nil {
			return nil, nil, wrapErr("receipts", err)
		}
		if delivered {
			deliveredTo = append(deliveredTo, uid)
		}
		if read {
			readBy = append(readBy, uid)
		}
	}
	return deliveredTo, readBy, wrapErr("receipts", rows.Err())
}

// HydrateReceipts fills a message's DeliveredTo and ReadBy sets from the
// current receipt rows.
func (db *DB) HydrateReceipts(m *Message) error {
	deliveredTo, readBy, err := db.ReceiptSets(m.ChatID, m.MsgID)
	if err != nil {
		return err
	}
	m.DeliveredTo = deliveredTo
	m.ReadBy = readBy
	return nil
}
