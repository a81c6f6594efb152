// Package database wraps golang-migrate/migrate for the judge engine's
// single-table schema (jobs). Kept as an ambient schema-bootstrap tool
// even though provisioning and migration tooling are themselves out of
// the core judge engine's scope: a running cluster still needs a
// deterministic way to create the jobs table.
package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationConfig describes where migrations live and how to reach the
// target database.
type MigrationConfig struct {
	DatabaseURL    string
	DatabaseType   string // "postgres" or "sqlite"
	MigrationsPath string
}

// MigrationRunner wraps a *migrate.Migrate instance for the jobs schema.
type MigrationRunner struct {
	m *migrate.Migrate
}

// NewMigrationRunner opens a migration runner against cfg.DatabaseURL
// using the driver implied by cfg.DatabaseType.
func NewMigrationRunner(cfg *MigrationConfig) (*MigrationRunner, error) {
	sourceURL := "file://" + cfg.MigrationsPath

	var (
		m   *migrate.Migrate
		err error
	)

	switch cfg.DatabaseType {
	case "postgres":
		m, err = migrate.New(sourceURL, dbURLWithScheme(cfg.DatabaseURL, "postgres"))
	case "sqlite":
		m, err = migrate.New(sourceURL, "sqlite3://"+strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
	if err != nil {
		return nil, fmt.Errorf("create migration runner: %w", err)
	}

	return &MigrationRunner{m: m}, nil
}

func dbURLWithScheme(dsn, scheme string) string {
	if strings.HasPrefix(dsn, scheme+"://") {
		return dsn
	}
	return scheme + "://" + strings.TrimPrefix(dsn, "postgresql://")
}

// RunMigrations applies every pending up migration.
func (r *MigrationRunner) RunMigrations() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func (r *MigrationRunner) RollbackMigration() error {
	if err := r.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// RollbackAll reverts every applied migration.
func (r *MigrationRunner) RollbackAll() error {
	if err := r.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrateTo moves the schema to the given version, up or down as needed.
func (r *MigrationRunner) MigrateTo(version uint) error {
	if err := r.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Force sets the migration version without running any migration,
// clearing a dirty state left by a failed migration.
func (r *MigrationRunner) Force(version int) error {
	return r.m.Force(version)
}

// GetVersion returns the current schema version and whether it's dirty.
func (r *MigrationRunner) GetVersion() (uint, bool, error) {
	return r.m.Version()
}

// Close releases the underlying source and database handles.
func (r *MigrationRunner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
