package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Options selects and configures a Store adapter.
type Options struct {
	Adapter       string // memory, sqlite or postgres
	SQLiteFile    string
	PostgresDSN   string
	MigrationsDir string
}

// Open builds the adapter named by o.Adapter. Postgres is migrated to the
// latest schema before it is handed out.
func Open(o Options) (Store, error) {
	switch o.Adapter {
	case "sqlite":
		if dir := filepath.Dir(o.SQLiteFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		s, err := NewSQLiteDB(o.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
		return s, nil
	case "postgres":
		slog.Info("applying database migrations", slog.String("dir", o.MigrationsDir))
		if err := ApplyMigrations(o.MigrationsDir, o.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		p, err := NewPostgresDB(o.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		slog.Info("connected to PostgreSQL database")
		return p, nil
	case "memory", "":
		slog.Warn("using in-memory database (not recommended for production)")
		return NewMemoryDB(), nil
	}
	return nil, fmt.Errorf("unsupported adapter: %s (supported: memory, sqlite, postgres)", o.Adapter)
}
