// Command adduser creates an account in the configured store without going
// through the HTTP API. The password is read from the terminal without
// echo.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/example/warden/internal/auth"
	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/store"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	var (
		username = flag.String("username", "", "Account name (required)")
		email    = flag.String("email", "", "Optional email, used by passwordless login")
		role     = flag.String("role", "user", "Role: user or admin")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := checkAdapter(cfg.DBAdapter); err != nil {
		slog.Error("adduser", slog.Any("error", err))
		os.Exit(1)
	}
	st, err := store.Open(store.Options{
		Adapter:       cfg.DBAdapter,
		SQLiteFile:    cfg.SQLiteFile,
		PostgresDSN:   cfg.PostgresDSN,
		MigrationsDir: cfg.MigrationsDir,
	})
	if err != nil {
		slog.Error("store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	if err := run(context.Background(), auth.NewService(st), *username, *email, *role, os.Stdout); err != nil {
		slog.Error("adduser", slog.Any("error", err))
		st.Close()
		os.Exit(1)
	}
}

// checkAdapter refuses the in-memory store: an account created there is
// gone when the command exits.
func checkAdapter(adapter string) error {
	switch adapter {
	case "", "memory":
		return fmt.Errorf("adduser needs a persistent store, current adapter: %q (set DB_ADAPTER to sqlite or postgres)", adapter)
	}
	return nil
}

func run(ctx context.Context, svc *auth.Service, username, email, role string, w io.Writer) error {
	if username == "" {
		return errors.New("-username is required")
	}

	pw, err := promptPassword(w, "Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword(w, "Repeat password: ")
	if err != nil {
		return err
	}
	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}

	u, err := svc.Register(ctx, auth.RegisterInput{
		Username: username,
		Password: string(pw),
		Email:    email,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created %s (id %d, role %s)\n", u.Username, u.ID, u.Role)
	return nil
}

func promptPassword(w io.Writer, prompt string) ([]byte, error) {
	fmt.Fprint(w, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}
