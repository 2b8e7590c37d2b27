package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/civictrack/apiserver/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrator returns a migrator over the embedded migrations. Callers must
// Close it.
func NewMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", source, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(cfg config.DatabaseConfig) error {
	migrator, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations; steps <= 0 rolls
// back everything.
func MigrateDown(cfg config.DatabaseConfig, steps int) error {
	migrator, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if steps > 0 {
		err = migrator.Steps(-steps)
	} else {
		err = migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return nil
}
