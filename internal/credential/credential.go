// Package credential implements the credential gate: password verification,
// user existence checks, and account registration backed by a
// SQLite-persisted user table.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors returned by Gate operations. Callers map these to
// transport-specific responses (HTTP status codes, TCP ERROR frames) at
// their own boundary.
var (
	ErrDupUsername     = errors.New("credential: username already registered")
	ErrDupEmail        = errors.New("credential: email already registered")
	ErrUserNotFound    = errors.New("credential: user not found")
	ErrInvalidCreds    = errors.New("credential: invalid username or password")
	ErrInvalidUsername = errors.New("credential: username must be 3-40 characters and must not contain ':'")
	ErrInvalidPassword = errors.New("credential: password must be at least 6 characters")
	ErrInvalidEmail    = errors.New("credential: email is not a valid address")
)

// User is the persisted account record.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Store persists and retrieves User records. SQLiteStore is the production
// implementation; tests may swap in an in-memory fake.
type Store interface {
	InsertUser(ctx context.Context, u User) error
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
}

// Gate verifies and registers user credentials. It is safe for concurrent
// use.
type Gate struct {
	store Store
}

// NewGate constructs a Gate backed by store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// ValidateUsername enforces the username shape shared by every caller of
// Register: 3-40 characters, no colon (colons cannot be safely framed in the
// TCP line protocol).
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 40 {
		return ErrInvalidUsername
	}
	if strings.Contains(username, ":") {
		return ErrInvalidUsername
	}
	return nil
}

// Register creates a new account. It enforces email and username uniqueness
// and the length/format bounds above.
func (g *Gate) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	if _, err := g.store.UserByUsername(ctx, username); err == nil {
		return nil, ErrDupUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("checking username uniqueness: %w", err)
	}
	if _, err := g.store.UserByEmail(ctx, email); err == nil {
		return nil, ErrDupEmail
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("checking email uniqueness: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := g.store.InsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &u, nil
}

// Authenticate verifies (email, password) and returns the matching user.
// Comparisons are constant-time via bcrypt.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := g.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCreds
		}
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCreds
	}
	return u, nil
}

// Verify checks (username, password) for the TCP LOGIN frame path. It
// returns true only if the username exists and the password matches.
func (g *Gate) Verify(ctx context.Context, username, password string) bool {
	u, err := g.store.UserByUsername(ctx, username)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}

// Exists reports whether username is registered.
func (g *Gate) Exists(ctx context.Context, username string) bool {
	_, err := g.store.UserByUsername(ctx, username)
	return err == nil
}

// UserByUsername is a thin passthrough used by handlers that need the full
// record (e.g. /api/auth/me).
func (g *Gate) UserByUsername(ctx context.Context, username string) (*User, error) {
	return g.store.UserByUsername(ctx, username)
}
