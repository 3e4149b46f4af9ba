// Package auth owns credential records and the role check applied to
// authenticated requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/warden/internal/store"
)

var (
	ErrMissingFields      = errors.New("username and password are required")
	ErrInvalidRole        = errors.New("invalid role")
	ErrPasswordTooLong    = errors.New("password longer than 72 bytes")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type RegisterInput struct {
	Username string
	Password string
	Email    string
	Role     string
}

// Service registers and authenticates users against a store.Store.
// Passwords are always stored as bcrypt hashes.
type Service struct {
	store store.Store
	cost  int

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, cost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a user. Usernames are matched exactly, so "Alice" and
// "alice" are different accounts.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*store.User, error) {
	if in.Username == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	hashed, err := hashPassword(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	u := &store.User{Username: in.Username, Email: in.Email, Password: hashed, Role: string(role)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, s.duplicateCause(ctx, in)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	slog.InfoContext(ctx, "user registered",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", u.Role),
	)
	return u, nil
}

func (s *Service) duplicateCause(ctx context.Context, in RegisterInput) error {
	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		return ErrUsernameTaken
	}
	if in.Email != "" {
		if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
			return ErrEmailTaken
		}
	}
	return ErrUsernameTaken
}

// Authenticate returns the user when password matches. Unknown usernames
// and wrong passwords both yield ErrInvalidCredentials, and both pay for
// one bcrypt comparison.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			comparePassword(s.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if !comparePassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// LookupEmail finds the account registered with email.
func (s *Service) LookupEmail(ctx context.Context, email string) (*store.User, error) {
	return s.store.GetUserByEmail(ctx, email)
}

// Seed makes sure an admin account named username exists. An existing
// account is left untouched.
func (s *Service) Seed(ctx context.Context, username, password string) error {
	_, err := s.Register(ctx, RegisterInput{Username: username, Password: password, Role: string(RoleAdmin)})
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	return err
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = hashPassword("not-a-real-password", s.cost)
	})
	return s.dummyHash
}
