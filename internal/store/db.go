package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the single shared SQLite connection for a profile's parlo.db.
// The handle is passed by injection into the sync engine, queue and
// receipt tracker; there is no package-level database state.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode, foreign key
// enforcement and a busy timeout.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
