package store

// SearchMessages performs a full-text search on message content.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.seq, m.msg_id, m.local_id, m.chat_id, m.sender_id, m.type, m.content,
		       m.timestamp, m.status,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.seq = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, wrapErr("messages_fts", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.Seq, &r.Message.MsgID, &r.Message.LocalID,
			&r.Message.ChatID, &r.Message.SenderID, &r.Message.Type,
			&r.Message.Content, &r.Message.Timestamp, &r.Message.Status,
			&r.Snippet,
		); err != nil {
			return nil, wrapErr("messages_fts", err)
		}
		results = append(results, r)
	}
	return results, wrapErr("messages_fts", rows.Err())
}
