// Package store persists users and notes. Three adapters implement Store:
// an in-process map (memory), SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// User is a credential record. Password holds a bcrypt hash, never the
// plain secret.
type User struct {
	ID        int64
	Username  string
	Email     string
	Password  string
	Role      string
	CreatedAt time.Time
}

type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is implemented by MemDB, SQLiteDB and PostgresDB.
type Store interface {
	// CreateUser inserts u and fills in its ID and CreatedAt. It returns
	// ErrDuplicate when the username (or a non-empty email) is taken.
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateNote(ctx context.Context, title, content string) (*Note, error)
	ListNotes(ctx context.Context) ([]*Note, error)
	GetNote(ctx context.Context, id int64) (*Note, error)
	// UpdateNote replaces the non-empty fields of note id.
	UpdateNote(ctx context.Context, id int64, title, content string) (*Note, error)
	// DeleteNote removes note id and returns what was removed.
	DeleteNote(ctx context.Context, id int64) (*Note, error)

	Ping(ctx context.Context) error
	Close() error
}
