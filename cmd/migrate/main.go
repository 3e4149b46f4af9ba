package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	if err := run(*command, *steps, *version, *dir); err != nil {
		slog.Error("migrate", slog.String("command", *command), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(command string, steps int, version uint, dir string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DBAdapter != "postgres" {
		return fmt.Errorf("migrations only work with PostgreSQL, current adapter: %s", cfg.DBAdapter)
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	mg, err := store.NewMigrator(dir, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer mg.Close()

	switch command {
	case "up":
		if err := mg.Up(steps); err != nil {
			return err
		}
		fmt.Println("✓ Migrations applied successfully")
	case "down":
		if err := mg.Down(steps); err != nil {
			return err
		}
		fmt.Println("✓ Migrations rolled back successfully")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			return fmt.Errorf("getting version: %w", err)
		}
		if dirty {
			return fmt.Errorf("database is in a dirty state (version %d)", v)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if version == 0 {
			return fmt.Errorf("version required for force command (use -version flag)")
		}
		if err := mg.Force(int(version)); err != nil {
			return err
		}
		fmt.Printf("✓ Forced database to version %d\n", version)
	default:
		return fmt.Errorf("unknown command: %s (supported: up, down, version, force)", command)
	}
	return nil
}
