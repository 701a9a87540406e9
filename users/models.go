// Package users is the credential store of the memories application.
// It persists user identity together with the bcrypt hash of the password and
// enforces email uniqueness. Users are created at signup and never updated here.
package users

import (
	"context"
	"time"
)

// User represents a registered account.
// `json:"-"` on Password keeps the hash out of every API response.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash, never the plaintext
	CreatedAt time.Time `json:"createdAt"`
}

// PublicUser is the subset of User returned to clients after signup and signin.
type PublicUser struct {
	ID    string `json:"id" example:"01920c4e-5b7a-7c3e-9f51-2a6d8e0f1b23"`
	Email string `json:"email" example:"ada@example.com"`
	Name  string `json:"name" example:"Ada Lovelace"`
}

// Public returns the client-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Store is the persistence contract for credentials.
//
// Create assigns ID and CreatedAt when they are empty and must report a duplicate
// email as an apperror ConflictError, including when the duplicate is detected by
// the backend itself because a concurrent signup won the race.
// GetByEmail and GetByID report a missing user as an apperror NotFoundError.
type Store interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// Client-facing messages shared by every Store implementation and the signup flow.
const (
	MsgUserExists   = "User already exists."
	MsgUserNotFound = "User doesn't exist."
)
