package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Migrator wraps a golang-migrate instance bound to one Postgres database.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens dbURL and loads migrations from migrationsDir.
func NewMigrator(migrationsDir, dbURL string) (*Migrator, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Close releases the migration source and the database handle.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Version returns the applied version; a database with no migrations
// reports 0.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Up applies all pending migrations, or n of them when n > 0.
func (mg *Migrator) Up(n int) error {
	var err error
	if n > 0 {
		err = mg.m.Steps(n)
	} else {
		err = mg.m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Down rolls back all migrations, or n of them when n > 0.
func (mg *Migrator) Down(n int) error {
	var err error
	if n > 0 {
		err = mg.m.Steps(-n)
	} else {
		err = mg.m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}

func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("forcing version: %w", err)
	}
	return nil
}

// ApplyMigrations brings the database at dbURL up to date. A dirty
// database is refused.
func ApplyMigrations(migrationsDir, dbURL string) error {
	mg, err := NewMigrator(migrationsDir, dbURL)
	if err != nil {
		return err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if err := mg.Up(0); err != nil {
		return err
	}

	newVersion, _, _ := mg.Version()
	if newVersion != version {
		slog.Info("migrated database", slog.Uint64("from", uint64(version)), slog.Uint64("to", uint64(newVersion)))
	} else {
		slog.Info("database is up to date", slog.Uint64("version", uint64(version)))
	}
	return nil
}
