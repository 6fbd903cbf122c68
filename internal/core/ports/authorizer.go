package ports

import (
	"context"
	"time"

	"github.com/avi-health/identity-service/internal/core/domain"
)

// Authorizer resolves bearer tokens into live identities and enforces
// role-gated operations.
type Authorizer interface {
	AuthenticateRequest(ctx context.Context, token string, now time.Time) (*domain.Identity, error)
	RequireRole(identity *domain.Identity, required domain.Role) error
	SetRole(ctx context.Context, acting *domain.Identity, targetID string, role domain.Role) (*domain.Identity, error)
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
}
