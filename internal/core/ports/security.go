package ports

import (
	"time"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// PasswordHasher hashes and verifies plaintext passwords.
// Verify fails closed: a malformed stored hash yields false.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, storedHash string) bool
}

// TokenCodec mints and verifies signed access tokens.
// Verify returns domain.ErrTokenExpired or domain.ErrTokenInvalid on failure.
type TokenCodec interface {
	Issue(subject string, role domain.Role, now time.Time) (string, error)
	Verify(token string, now time.Time) (domain.Claims, error)
}
