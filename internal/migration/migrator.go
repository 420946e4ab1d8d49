// Package migration applies the embedded schema with golang-migrate.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Dialect names a supported database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Migrator runs schema migrations against an already open database.
type Migrator struct {
	m *migrate.Migrate
	// closeDriver is set when the migrator owns its database handle.
	closeDriver bool
}

// NewPostgres prepares migrations for a pgx pool.
func NewPostgres(pool *pgxpool.Pool) (*Migrator, error) {
	driver, err := pgxmigrate.WithInstance(stdlib.OpenDBFromPool(pool), &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres migration driver: %w", err)
	}
	m, err := newMigrator(DialectPostgres, driver)
	if err != nil {
		return nil, err
	}
	m.closeDriver = true
	return m, nil
}

// NewSQLite prepares migrations for a SQLite database. The caller keeps
// ownership of db.
func NewSQLite(db *sql.DB) (*Migrator, error) {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}
	return newMigrator(DialectSQLite, driver)
}

func newMigrator(dialect Dialect, driver database.Driver) (*Migrator, error) {
	fsys, path := postgresFS, "migrations/postgres"
	if dialect == DialectSQLite {
		fsys, path = sqliteFS, "migrations/sqlite"
	}
	src, err := iofs.New(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version returns the applied version. A database with no migrations
// reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the connection held by a Postgres migrator. SQLite
// migrators share the caller's handle and leave it open.
func (m *Migrator) Close() error {
	if !m.closeDriver {
		return nil
	}
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
