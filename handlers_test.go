package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/warden/internal/auth"
	"github.com/example/warden/internal/library"
	"github.com/example/warden/internal/session"
	"github.com/example/warden/internal/store"
	"github.com/example/warden/internal/token"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) *App {
	t.Helper()
	codec, err := token.NewCodec([]byte(testSecret))
	require.NoError(t, err)

	db := store.NewMemoryDB()
	sessions := session.NewMemoryBinder(time.Hour, time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })

	return &App{
		Store:         db,
		Auth:          auth.NewService(db, auth.WithBcryptCost(bcrypt.MinCost)),
		Codec:         codec,
		Sessions:      sessions,
		Books:         library.NewBooks(library.DefaultBooks()...),
		Friends:       library.NewFriends(library.DefaultFriends()...),
		TokenTTL:      time.Hour,
		SessionTTL:    time.Hour,
		SessionCookie: "sid",
		PublicURL:     "http://warden.test",
	}
}

type reqOpt func(*http.Request)

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withRemote(addr string) reqOpt {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	return nil
}

func register(t *testing.T, h http.Handler, username, password, email, role string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/register", credentials{Username: username, Password: password, Email: email, Role: role})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func login(t *testing.T, h http.Handler, username, password string) (string, *http.Cookie) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/login", credentials{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	c := sessionCookie(rec)
	require.NotNil(t, c)
	return tok, c
}

func TestRoleGate_UserAndAdmin(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "alice", "pw-alice", "", "user")
	register(t, h, "bob", "pw-bob", "", "admin")

	alice, _ := login(t, h, "alice", "pw-alice")
	bob, _ := login(t, h, "bob", "pw-bob")

	rec := do(t, h, http.MethodGet, "/admin-only", nil, withBearer(alice))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied: insufficient role", decode(t, rec)["message"])

	rec = do(t, h, http.MethodGet, "/admin-only", nil, withBearer(bob))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/user-dashboard", nil, withBearer(alice))
	assert.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "user", user["role"])

	rec = do(t, h, http.MethodGet, "/admin-dashboard", nil, withBearer(alice))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodGet, "/admin-dashboard", nil, withBearer(bob))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_NoToken(t *testing.T) {
	h := newTestApp(t).Routes()

	for _, opts := range [][]reqOpt{
		nil,
		{func(r *http.Request) { r.Header.Set("Authorization", "Basic YWxpY2U6cHc=") }},
		{withBearer("")},
	} {
		rec := do(t, h, http.MethodGet, "/dashboard", nil, opts...)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "No token provided", decode(t, rec)["message"])
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	h := newTestApp(t).Routes()

	other, err := token.NewCodec([]byte("some-other-secret"))
	require.NoError(t, err)
	forged, err := other.Sign(token.Identity{Username: "mallory", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	past, err := token.NewCodec([]byte(testSecret), token.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	require.NoError(t, err)
	expired, err := past.Sign(token.Identity{Username: "alice", Role: "user"}, time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage": "not.a.token",
		"forged":  forged,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/dashboard", nil, withBearer(tok))
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "Invalid or expired token", decode(t, rec)["message"])
		})
	}
}

func TestRequireRoles_WithoutIdentity(t *testing.T) {
	h := RequireRoles(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", decode(t, rec)["message"])
}

func TestSession_CookieOnlyAndLogout(t *testing.T) {
	app := newTestApp(t)
	h := app.Routes()
	register(t, h, "alice", "pw", "", "")
	_, cookie := login(t, h, "alice", "pw")
	assert.True(t, cookie.HttpOnly)

	rec := do(t, h, http.MethodGet, "/dashboard", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])

	rec = do(t, h, http.MethodPost, "/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Equal(t, "", cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	b, err := app.Sessions.Lookup(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Nil(t, b)

	rec = do(t, h, http.MethodGet, "/dashboard", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_CookieTakesPrecedence(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "alice", "pw", "", "user")
	register(t, h, "bob", "pw", "", "admin")
	_, aliceCookie := login(t, h, "alice", "pw")
	bob, _ := login(t, h, "bob", "pw")

	rec := do(t, h, http.MethodGet, "/admin-only", nil, withCookie(aliceCookie), withBearer(bob))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	stale := &http.Cookie{Name: "sid", Value: "no-such-session"}
	rec = do(t, h, http.MethodGet, "/admin-only", nil, withCookie(stale), withBearer(bob))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin-only", nil, withCookie(stale))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_ReloginReplacesSession(t *testing.T) {
	app := newTestApp(t)
	h := app.Routes()
	register(t, h, "alice", "pw", "", "")
	_, first := login(t, h, "alice", "pw")

	rec := do(t, h, http.MethodPost, "/login", credentials{Username: "alice", Password: "pw"}, withCookie(first))
	require.Equal(t, http.StatusOK, rec.Code)
	second := sessionCookie(rec)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	b, err := app.Sessions.Lookup(context.Background(), first.Value)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestRegister(t *testing.T) {
	h := newTestApp(t).Routes()

	rec := do(t, h, http.MethodPost, "/register", credentials{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/register", credentials{Username: "alice", Password: "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", decode(t, rec)["message"])

	for _, c := range []credentials{
		{Username: "carol"},
		{Password: "pw"},
		{Username: "carol", Password: "pw", Role: "root"},
		{Username: "carol", Password: strings.Repeat("x", 73)},
	} {
		rec = do(t, h, http.MethodPost, "/register", c)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unable to register user.", decode(t, rec)["message"])
	}

	rec = do(t, h, http.MethodPost, "/register", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_Concurrent(t *testing.T) {
	h := newTestApp(t).Routes()

	const n = 20
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- do(t, h, http.MethodPost, "/register", credentials{Username: "dup", Password: "pw"}).Code
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, created)
}

func TestLogin_Errors(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "alice", "pw", "", "")

	rec := do(t, h, http.MethodPost, "/login", credentials{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	wrong := do(t, h, http.MethodPost, "/login", credentials{Username: "alice", Password: "nope"})
	unknown := do(t, h, http.MethodPost, "/login", credentials{Username: "ghost", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Invalid credentials", decode(t, wrong)["message"])
	assert.Nil(t, sessionCookie(wrong))
}

func TestTokenVerify(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "alice", "pw", "alice@mail.com", "")
	tok, _ := login(t, h, "alice", "pw")

	rec := do(t, h, http.MethodGet, "/jwt/verify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/jwt/verify?token="+url.QueryEscape(tok), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["valid"])
	claims := body["claims"].(map[string]interface{})
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "alice@mail.com", claims["email"])
	assert.NotNil(t, claims["exp"])

	rec = do(t, h, http.MethodGet, "/jwt/verify?token=garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "malformed", body["error"])
}

func TestTokenVerify_Reasons(t *testing.T) {
	h := newTestApp(t).Routes()
	id := token.Identity{ID: 1, Username: "alice", Role: "user"}

	past := time.Now().Add(-2 * time.Hour)
	stale, err := token.NewCodec([]byte(testSecret), token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := stale.Sign(id, time.Hour)
	require.NoError(t, err)

	other, err := token.NewCodec([]byte("another-secret"))
	require.NoError(t, err)
	forged, err := other.Sign(id, time.Hour)
	require.NoError(t, err)

	fresh, err := token.NewCodec([]byte(testSecret))
	require.NoError(t, err)
	link, err := fresh.Sign(id, time.Minute, token.WithAudience(token.AudienceMagicLink))
	require.NoError(t, err)

	for tok, want := range map[string]string{
		expired:       "expired",
		forged:        "invalid signature",
		link:          "wrong audience",
		"a.b.c":       "malformed",
		"not-a-token": "malformed",
	} {
		rec := do(t, h, http.MethodGet, "/jwt/verify?token="+url.QueryEscape(tok), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, want, decode(t, rec)["error"], tok)
	}
}

func TestPasswordless(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "carol", "pw", "carol@mail.com", "")

	rec := do(t, h, http.MethodPost, "/passwordless/request-link", map[string]string{"email": "nobody@mail.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email not found", decode(t, rec)["message"])

	rec = do(t, h, http.MethodPost, "/passwordless/request-link", map[string]string{"email": "carol@mail.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	link, err := url.Parse(decode(t, rec)["magicLink"].(string))
	require.NoError(t, err)
	assert.Equal(t, "warden.test", link.Host)
	assert.Equal(t, "/passwordless/login", link.Path)

	rec = do(t, h, http.MethodGet, link.RequestURI(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, decode(t, rec)["token"])

	rec = do(t, h, http.MethodGet, "/profile", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", decode(t, rec)["user"].(map[string]interface{})["username"])

	rec = do(t, h, http.MethodGet, "/passwordless/login", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/passwordless/login?token=garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordless_TokensDoNotCross(t *testing.T) {
	h := newTestApp(t).Routes()
	register(t, h, "carol", "pw", "carol@mail.com", "")

	rec := do(t, h, http.MethodPost, "/passwordless/request-link", map[string]string{"email": "carol@mail.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	link, err := url.Parse(decode(t, rec)["magicLink"].(string))
	require.NoError(t, err)
	magic := link.Query().Get("token")
	require.NotEmpty(t, magic)

	// a magic-link token is not an access token
	rec = do(t, h, http.MethodGet, "/dashboard", nil, withBearer(magic))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// an access token cannot be exchanged for a fresh one
	access, _ := login(t, h, "carol", "pw")
	rec = do(t, h, http.MethodGet, "/passwordless/login?token="+url.QueryEscape(access), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	// nor can the token handed out by a magic login
	rec = do(t, h, http.MethodGet, link.RequestURI(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decode(t, rec)["token"].(string)
	rec = do(t, h, http.MethodGet, "/dashboard", nil, withBearer(issued))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/passwordless/login?token="+url.QueryEscape(issued), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	app := newTestApp(t)
	app.rateLimiter = NewRateLimiter(2)
	h := app.Routes()

	creds := credentials{Username: "ghost", Password: "pw"}
	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/login", creds, withRemote("10.0.0.1:1111"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/login", creds, withRemote("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", creds, withRemote("10.0.0.2:1111"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// read-only routes are not throttled
	rec = do(t, h, http.MethodGet, "/books", nil, withRemote("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndHeaders(t *testing.T) {
	h := newTestApp(t).Routes()

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ready"])
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, rec)["error"])
}
