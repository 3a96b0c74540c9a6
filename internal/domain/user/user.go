// Package user models storefront accounts.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists with this email")
)

// User is a registered customer or administrator.
type User struct {
	ID    string
	Email string
	// PasswordHash is a bcrypt hash and is never exposed over the API.
	PasswordHash string
	FullName     string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail returns the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository defines persistence operations for users.
type Repository interface {
	// Create stores u, returning ErrEmailTaken when the email is in use.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
