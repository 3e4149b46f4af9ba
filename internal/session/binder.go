// Package session binds server-side session ids to issued access tokens.
// Session ids travel to the browser in a cookie; the token never does
// unless the client asks for it at login.
package session

import (
	"context"

	"github.com/google/uuid"
)

// Binding is the server-held state behind one session id.
type Binding struct {
	AccessToken string `json:"accessToken"`
	Username    string `json:"username"`
}

type Binder interface {
	// Bind stores token for sid, replacing any earlier binding.
	Bind(ctx context.Context, sid, token, username string) error
	// Lookup returns the binding for sid, or nil when there is none.
	Lookup(ctx context.Context, sid string) (*Binding, error)
	// Unbind forgets sid. Unknown ids are not an error.
	Unbind(ctx context.Context, sid string) error
	Close() error
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}
