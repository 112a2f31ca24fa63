// Package models defines the user record and the request/response payloads
// exchanged with the greenhouse directory API. The same payload types are
// used by the client session layer and by the companion server.
package models

import "errors"

// User represents a member of the greenhouse directory.
// The identifier is assigned by the server; the client never generates IDs.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// UserRecord is the stored form of a user: the public fields plus the
// bcrypt hash of the password. It is never serialized into API responses.
type UserRecord struct {
	User
	PasswordHash string `json:"password_hash"`
}

// LoginRequest is the payload of POST /api/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterRequest is the payload of POST /api/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone,omitempty"`
}

// CreateUserRequest is the payload of POST /api/users.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest is the payload of PUT /api/users/{id}.
// The password field is left out of the payload entirely when it is empty,
// meaning "keep the current password".
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6"`
}

// AuthResponse is returned by the register and login endpoints.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// UsersResponse is returned by GET /api/users.
type UsersResponse struct {
	Users []User `json:"users"`
}

// UserResponse is returned by the create and update endpoints.
type UserResponse struct {
	User User `json:"user"`
}

// StatsResponse is returned by the internal stats endpoint.
type StatsResponse struct {
	Users int64 `json:"users"`
}

// Storage backend kinds, selected from configuration.
const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// ErrUserNotFound is returned by storage backends when no user exists
// with the requested identifier.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when a create or update would violate the
// unique-email contract.
var ErrEmailTaken = errors.New("a user with this email already exists")
