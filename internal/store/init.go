package store

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/parlochat/parlo/internal/store/migrations"
)

// InitResult describes what happened during schema initialization.
type InitResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Init creates all tables and indexes if absent and records the schema
// version. Idempotent: calling Init on an up-to-date database is a no-op
// success with Changed=false.
func (db *DB) Init() (*InitResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	return &InitResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}
