package ports

import (
	"context"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// AuthService covers credential issuance and self-service account changes.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.Identity, error)
	Login(ctx context.Context, usernameOrEmail, password string) (string, *domain.Identity, error)
	ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) (*domain.Identity, error)
	UpdateProfile(ctx context.Context, identityID, username, email string) (*domain.Identity, error)
}
