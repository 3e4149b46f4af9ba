package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/warden/internal/auth"
)

// Authenticate resolves the caller's token and attaches the decoded identity
// to the request context. The session cookie is consulted first; a cookie
// that names no live session falls through to the Authorization header.
func (a *App) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := a.tokenFromRequest(r)
		if err != nil {
			writeInternal(w, r, err)
			return
		}
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No token provided")
			return
		}

		claims, err := a.Codec.Verify(tok)
		if err != nil {
			slog.DebugContext(r.Context(), "token rejected", slog.Any("error", err))
			writeError(w, http.StatusForbidden, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		id := claims.Identity
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), &id)))
	})
}

func (a *App) tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(a.SessionCookie); err == nil && c.Value != "" {
		b, err := a.Sessions.Lookup(r.Context(), c.Value)
		if err != nil {
			return "", fmt.Errorf("session lookup: %w", err)
		}
		if b != nil && b.AccessToken != "" {
			return b.AccessToken, nil
		}
	}
	return bearerToken(r), nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireRoles admits only identities whose role is one of roles. It must
// run behind Authenticate.
func RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFrom(r.Context())
			if id == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
				return
			}
			if err := auth.Authorize(id, roles...); err != nil {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter implements per-client rate limiting keyed by remote IP
type RateLimiter struct {
	limiters       map[string]*rate.Limiter
	mu             sync.RWMutex
	limitPerMinute int
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	return &RateLimiter{
		limiters:       make(map[string]*rate.Limiter),
		limitPerMinute: limitPerMinute,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.limitPerMinute)/60, rl.limitPerMinute)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit throttles the credential endpoints. A non-positive limit turns
// it off.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.rateLimiter == nil || a.rateLimiter.limitPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !a.rateLimiter.getLimiter(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
		}
		slog.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Recovery turns a panicking handler into a 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeInternal(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
