package domain

import (
	"context"
	"time"
)

// User represents a library member
type User struct {
	ID           string // UUID
	Name         string
	Email        string // Unique email address
	Phone        string
	PasswordHash string // Bcrypt hashed password (not returned in API)
	Role         string // "member" or "librarian"
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines data access for members. Membership records are
// administered out of band; the lending core only reads them.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}
