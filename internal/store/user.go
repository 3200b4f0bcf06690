package store

import (
	"database/sql"
	"time"
)

// UpsertUser inserts or fully overwrites a user row by uid. The remote
// store is the source of truth, so every field takes the incoming value.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (uid, email, display_name, created_at, last_seen, is_online, fcm_token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			created_at = excluded.created_at,
			last_seen = excluded.last_seen,
			is_online = excluded.is_online,
			fcm_token = excluded.fcm_token,
			updated_at = excluded.updated_at`,
		u.UID, u.Email, u.DisplayName, u.CreatedAt, u.LastSeen, u.IsOnline, u.FCMToken, now)
	return wrapErr("users", err)
}

// GetUser returns a user by uid, or nil when not cached locally.
func (db *DB) GetUser(uid string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT uid, email, display_name, created_at, last_seen, is_online, fcm_token
		FROM users WHERE uid = ?`, uid).
		Scan(&u.UID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.LastSeen, &u.IsOnline, &u.FCMToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("users", err)
	}
	return &u, nil
}

// UserCount returns the total number of cached users.
func (db *DB) UserCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, wrapErr("users", err)
}
