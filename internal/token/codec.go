// Package token signs and verifies the HS256 access tokens handed out at
// login. A token embeds the caller's identity and is valid until its exp
// claim passes; there is no server-side revocation.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptySecret      = errors.New("token secret is empty")
	ErrInvalidTTL       = errors.New("token ttl must be positive")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("token malformed")
	ErrWrongAudience    = errors.New("token audience mismatch")
)

// AudienceMagicLink marks a token that only proves control of an email
// address. Verify rejects it; it is accepted by VerifyAudience alone.
const AudienceMagicLink = "magic-link"

// Identity is the payload copied from a user record at sign time.
type Identity struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Claims is what travels inside the token.
type Claims struct {
	Identity
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single symmetric secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SignOption adjusts the registered claims of a token being signed.
type SignOption func(*jwt.RegisteredClaims)

// WithAudience restricts the token to the given audience.
func WithAudience(aud string) SignOption {
	return func(rc *jwt.RegisteredClaims) { rc.Audience = jwt.ClaimStrings{aud} }
}

// Sign returns a token for id that expires ttl from now.
func (c *Codec) Sign(id Identity, ttl time.Duration, opts ...SignOption) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	now := c.now()
	claims := Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, o := range opts {
		o(&claims.RegisteredClaims)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return s, nil
}

// Verify checks the signature and expiry of an access token and returns
// its claims. Expiry is compared at second resolution: a token is rejected
// once the current unix second reaches exp. Tokens signed for an audience
// are not access tokens and fail with ErrWrongAudience.
func (c *Codec) Verify(s string) (*Claims, error) {
	return c.verify(s, "")
}

// VerifyAudience is Verify for tokens signed WithAudience(aud).
func (c *Codec) VerifyAudience(s, aud string) (*Claims, error) {
	return c.verify(s, aud)
}

func (c *Codec) verify(s, aud string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(s, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	if c.now().Unix() >= claims.ExpiresAt.Unix() {
		return nil, ErrExpiredToken
	}
	if !audienceMatches(claims.Audience, aud) {
		return nil, ErrWrongAudience
	}
	return claims, nil
}

func audienceMatches(got jwt.ClaimStrings, want string) bool {
	if want == "" {
		return len(got) == 0
	}
	for _, a := range got {
		if a == want {
			return true
		}
	}
	return false
}
