package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/example/warden/internal/auth"
	cfg "github.com/example/warden/internal/config"
	"github.com/example/warden/internal/library"
	"github.com/example/warden/internal/session"
	"github.com/example/warden/internal/store"
	"github.com/example/warden/internal/token"
)

type App struct {
	Store    store.Store
	Auth     *auth.Service
	Codec    *token.Codec
	Sessions session.Binder
	Books    *library.Books
	Friends  *library.Friends

	TokenTTL      time.Duration
	SessionTTL    time.Duration
	SessionCookie string
	CookieSecure  bool
	PublicURL     string

	rateLimiter *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", slog.Any("error", err))
	}
}

// Routes wires every endpoint. Credential endpoints are rate limited;
// protected ones run behind Authenticate and, where a role is named,
// RequireRoles.
func (a *App) Routes() *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(Recovery)
	r.Use(SecurityHeaders)
	r.Use(Logging)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "store not ready", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")

	limited := func(h http.HandlerFunc) http.Handler { return a.RateLimit(h) }
	protected := func(h http.Handler, roles ...auth.Role) http.Handler {
		if len(roles) > 0 {
			h = RequireRoles(roles...)(h)
		}
		return a.Authenticate(h)
	}

	// Credentials
	r.Handle("/register", limited(a.HandleRegister)).Methods("POST")
	r.Handle("/login", limited(a.HandleLogin)).Methods("POST")
	r.HandleFunc("/logout", a.HandleLogout).Methods("POST")
	r.HandleFunc("/jwt/verify", a.HandleTokenVerify).Methods("GET")
	r.Handle("/passwordless/request-link", limited(a.HandleRequestMagicLink)).Methods("POST")
	r.HandleFunc("/passwordless/login", a.HandleMagicLogin).Methods("GET")

	r.Handle("/dashboard", protected(welcome("Welcome to your dashboard"))).Methods("GET")
	r.Handle("/profile", protected(welcome("Here is your profile data"))).Methods("GET")
	r.Handle("/user-dashboard", protected(welcome("Welcome to user dashboard"), auth.RoleUser, auth.RoleAdmin)).Methods("GET")
	r.Handle("/admin-dashboard", protected(welcome("Welcome to admin dashboard"), auth.RoleAdmin)).Methods("GET")
	r.Handle("/admin-only", protected(welcome("Welcome, admin"), auth.RoleAdmin)).Methods("GET")

	// Books are public to read; reviews need a logged-in user
	r.HandleFunc("/books", a.HandleListBooks).Methods("GET")
	r.HandleFunc("/isbn/{isbn}", a.HandleGetBook).Methods("GET")
	r.HandleFunc("/author/{author}", a.HandleBooksByAuthor).Methods("GET")
	r.HandleFunc("/title/{title}", a.HandleBooksByTitle).Methods("GET")
	r.HandleFunc("/review/{isbn}", a.HandleGetBook).Methods("GET")
	r.Handle("/review/{isbn}", protected(http.HandlerFunc(a.HandleSetReview))).Methods("PUT")
	r.Handle("/review/{isbn}", protected(http.HandlerFunc(a.HandleDeleteReview))).Methods("DELETE")

	notes := r.PathPrefix("/api/notes").Subrouter()
	notes.Use(a.Authenticate)
	notes.HandleFunc("", a.HandleListNotes).Methods("GET")
	notes.HandleFunc("", a.HandleCreateNote).Methods("POST")
	notes.HandleFunc("/{id}", a.HandleGetNote).Methods("GET")
	notes.HandleFunc("/{id}", a.HandleUpdateNote).Methods("PUT")
	notes.Handle("/{id}", RequireRoles(auth.RoleAdmin)(http.HandlerFunc(a.HandleDeleteNote))).Methods("DELETE")

	friends := r.PathPrefix("/friends").Subrouter()
	friends.Use(a.Authenticate)
	friends.HandleFunc("", a.HandleListFriends).Methods("GET")
	friends.HandleFunc("", a.HandleCreateFriend).Methods("POST")
	friends.HandleFunc("/{email}", a.HandleGetFriend).Methods("GET")
	friends.HandleFunc("/{email}", a.HandleUpdateFriend).Methods("PUT")
	friends.HandleFunc("/{email}", a.HandleDeleteFriend).Methods("DELETE")

	return r
}

func openSessions(ctx context.Context, c *cfg.Config) (session.Binder, error) {
	if c.SessionStore != "redis" {
		return session.NewMemoryBinder(c.SessionTTL, time.Minute), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("connected to redis session store", slog.String("addr", c.RedisAddr))
	return session.NewRedisBinder(client, c.SessionTTL), nil
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		fatal("config", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()})))

	codec, err := token.NewCodec([]byte(c.JwtSecret))
	if err != nil {
		fatal("token codec", err)
	}

	db, err := store.Open(store.Options{
		Adapter:       c.DBAdapter,
		SQLiteFile:    c.SQLiteFile,
		PostgresDSN:   c.PostgresDSN,
		MigrationsDir: c.MigrationsDir,
	})
	if err != nil {
		fatal("store", err)
	}
	sessions, err := openSessions(context.Background(), c)
	if err != nil {
		fatal("session store", err)
	}

	svc := auth.NewService(db)
	if c.AdminUsername != "" {
		if err := svc.Seed(context.Background(), c.AdminUsername, c.AdminPassword); err != nil {
			fatal("seeding admin", err)
		}
	}

	app := &App{
		Store:         db,
		Auth:          svc,
		Codec:         codec,
		Sessions:      sessions,
		Books:         library.NewBooks(library.DefaultBooks()...),
		Friends:       library.NewFriends(library.DefaultFriends()...),
		TokenTTL:      c.TokenTTL,
		SessionTTL:    c.SessionTTL,
		SessionCookie: c.SessionCookie,
		CookieSecure:  c.CookieSecure,
		PublicURL:     c.PublicURL,
		rateLimiter:   NewRateLimiter(c.RateLimitPerMinute),
	}

	srv := &http.Server{Handler: app.Routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		slog.Info("starting server", slog.String("port", c.Port), slog.String("env", c.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", slog.Any("error", err))
	}
	if err := sessions.Close(); err != nil {
		slog.Error("closing session store", slog.Any("error", err))
	}
	if err := db.Close(); err != nil {
		slog.Error("closing store", slog.Any("error", err))
	}
	slog.Info("server exited properly")
}
