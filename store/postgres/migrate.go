package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrations holds the versioned schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Migration actions accepted by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateDrop    = "drop"
	MigrateVersion = "version"
)

// MigrationStatus is the schema version after a migration action.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool // false when no migration has ever run
}

// Migrate runs action against the database at dsn using the embedded migrations.
func Migrate(dsn, action string) (MigrationStatus, error) {
	switch action {
	case MigrateUp, MigrateDown, MigrateDrop, MigrateVersion:
	default:
		return MigrationStatus{}, fmt.Errorf("unsupported action %q", action)
	}

	src, err := iofs.New(Migrations, "migrations")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("postgres: open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("postgres: create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case MigrateUp:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, err
		}
	case MigrateDown:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, err
		}
	case MigrateDrop:
		if err := m.Drop(); err != nil {
			return MigrationStatus{}, err
		}
		return MigrationStatus{}, nil
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, err
	}
	return MigrationStatus{Version: version, Dirty: dirty, Applied: true}, nil
}
