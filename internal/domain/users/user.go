package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAdminSignupDisabled = errors.New("admin self-registration is disabled")
	ErrPasswordTooLong     = errors.New("password exceeds 72 bytes")
	ErrBootstrapIncomplete = errors.New("admin bootstrap requires name, email and password")
)

// User is a stored account. PasswordHash never leaves the domain layer; use
// Public for anything that is serialized.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the externally visible view of a user.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role)}
}

// NewUser carries the fields persisted by Repository.Create.
type NewUser struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
}

// Repository is the credential store. Implementations enforce email
// uniqueness atomically and return ErrEmailTaken on conflict.
type Repository interface {
	Create(ctx context.Context, params NewUser) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
