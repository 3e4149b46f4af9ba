package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string
	// PublicURL prefixes the magic links handed out by passwordless login.
	PublicURL string

	DBAdapter     string
	SQLiteFile    string
	MigrationsDir string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	JwtSecret string
	TokenTTL  time.Duration

	SessionStore  string
	SessionTTL    time.Duration
	SessionCookie string
	CookieSecure  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitPerMinute int

	// AdminUsername and AdminPassword seed an admin account at startup
	// when both are set.
	AdminUsername string
	AdminPassword string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func New() (*Config, error) {
	c := &Config{
		Port:          getenv("PORT", "8080"),
		Env:           strings.ToLower(getenv("ENV", "development")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		DBAdapter:     getenv("DB_ADAPTER", "memory"),
		SQLiteFile:    getenv("SQLITE_FILE", "./data/warden.db"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "./migrations"),
		JwtSecret:     os.Getenv("JWT_SECRET"),
		SessionStore:  getenv("SESSION_STORE", "memory"),
		SessionCookie: getenv("SESSION_COOKIE", "sid"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "warden")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "warden")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}
	c.PublicURL = strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:"+c.Port), "/")

	var err error
	if c.TokenTTL, err = getDuration("TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if c.CookieSecure, err = strconv.ParseBool(getenv("COOKIE_SECURE", strconv.FormatBool(c.IsProduction()))); err != nil {
		return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
	}

	// there is deliberately no built-in fallback secret
	if c.JwtSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	if c.IsProduction() && len(c.JwtSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 bytes in production")
	}

	switch c.DBAdapter {
	case "memory":
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: memory, sqlite, postgres)", c.DBAdapter)
	}

	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR must be set when SESSION_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE: %s (supported: memory, redis)", c.SessionStore)
	}

	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return nil, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
