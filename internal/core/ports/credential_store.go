package ports

import (
	"context"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// CredentialStore persists identity records.
//
// Find* return domain.ErrUserNotFound on a miss. Save inserts when the
// identity has no ID and replaces the stored record otherwise; it must
// enforce username and email uniqueness at write time and report a
// collision as domain.ErrUserExists (optionally as a domain.ConflictError).
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, identity *domain.Identity) (*domain.Identity, error)
	Delete(ctx context.Context, id string) error
}
