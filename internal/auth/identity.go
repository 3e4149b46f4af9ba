package auth

import (
	"context"
	"errors"

	"github.com/example/warden/internal/token"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps an empty string to RoleUser and rejects anything that is
// not a known role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleUser, nil
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", ErrInvalidRole
}

// Identity is the decoded token payload attached to an authenticated
// request.
type Identity = token.Identity

var ErrForbidden = errors.New("forbidden")

// Authorize reports ErrForbidden unless id is present and its role is one
// of allowed. An empty allowed set denies everyone.
func Authorize(id *Identity, allowed ...Role) error {
	if id == nil {
		return ErrForbidden
	}
	for _, r := range allowed {
		if Role(id.Role) == r {
			return nil
		}
	}
	return ErrForbidden
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
