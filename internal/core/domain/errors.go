package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidRole        = errors.New("invalid role")
)

// ConflictError reports which unique field collided on a write.
// Field is one of "username" or "email".
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return ErrUserExists.Error()
	}
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e ConflictError) Unwrap() error { return ErrUserExists }

// NewConflict returns a ConflictError for field.
func NewConflict(field string) error {
	return ConflictError{Field: field}
}

// ConflictField extracts the colliding field from err, if any.
func ConflictField(err error) (string, bool) {
	var ce ConflictError
	if errors.As(err, &ce) {
		return ce.Field, true
	}
	return "", false
}
