package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/example/warden/internal/auth"
	"github.com/example/warden/internal/session"
	"github.com/example/warden/internal/store"
	"github.com/example/warden/internal/token"
)

// magic links are short-lived on purpose; they are exchanged for a
// regular token on first use.
const magicLinkTTL = 5 * time.Minute

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func identityOf(u *store.User) token.Identity {
	return token.Identity{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	_, err := a.Auth.Register(r.Context(), auth.RegisterInput{
		Username: c.Username,
		Password: c.Password,
		Email:    c.Email,
		Role:     c.Role,
	})
	if err != nil {
		registerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User successfully registered. Now you can login",
	})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Username == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and password required")
		return
	}

	user, err := a.Auth.Authenticate(r.Context(), c.Username, c.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	tok, err := a.startSession(w, r, identityOf(user))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "user logged in", slog.String("username", user.Username))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   tok,
	})
}

// startSession signs a token for id, binds it to a fresh session id and
// sets the session cookie. A session the browser already carried is
// dropped so a re-login replaces it.
func (a *App) startSession(w http.ResponseWriter, r *http.Request, id token.Identity) (string, error) {
	tok, err := a.Codec.Sign(id, a.TokenTTL)
	if err != nil {
		return "", err
	}

	if c, err := r.Cookie(a.SessionCookie); err == nil && c.Value != "" {
		if err := a.Sessions.Unbind(r.Context(), c.Value); err != nil {
			return "", err
		}
	}

	sid := session.NewID()
	if err := a.Sessions.Bind(r.Context(), sid, tok, id.Username); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.SessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(a.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return tok, nil
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(a.SessionCookie); err == nil && c.Value != "" {
		if err := a.Sessions.Unbind(r.Context(), c.Value); err != nil {
			writeInternal(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleTokenVerify reports whether the token in the query string is valid
// and, if so, what it carries.
func (a *App) HandleTokenVerify(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	claims, err := a.Codec.Verify(tok)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"valid": false,
			"error": verifyReason(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"claims": claims,
	})
}

// verifyReason maps codec errors to the fixed strings /jwt/verify reports.
func verifyReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid signature"
	case errors.Is(err, token.ErrWrongAudience):
		return "wrong audience"
	default:
		return "malformed"
	}
}

func (a *App) HandleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email is required")
		return
	}

	user, err := a.Auth.LookupEmail(r.Context(), body.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	tok, err := a.Codec.Sign(identityOf(user), magicLinkTTL, token.WithAudience(token.AudienceMagicLink))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	link := a.PublicURL + "/passwordless/login?token=" + url.QueryEscape(tok)
	slog.InfoContext(r.Context(), "magic link issued", slog.String("username", user.Username))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Magic link generated (normally sent via email)",
		"magicLink": link,
	})
}

// HandleMagicLogin exchanges a magic-link token for a regular session.
// Access tokens are refused here, so a session cannot be renewed through
// this route.
func (a *App) HandleMagicLogin(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token required")
		return
	}
	claims, err := a.Codec.VerifyAudience(tok, token.AudienceMagicLink)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	fresh, err := a.startSession(w, r, claims.Identity)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Logged in successfully via magic link",
		"token":   fresh,
		"user":    claims.Identity,
	})
}

// welcome answers the dashboard-style routes with the caller's identity.
func welcome(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": message,
			"user":    auth.IdentityFrom(r.Context()),
		})
	}
}
