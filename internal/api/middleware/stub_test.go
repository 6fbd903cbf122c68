package middleware

import (
	"context"
	"time"

	"github.com/avi-health/identity-service/internal/core/domain"
)

type stubAuthorizer struct {
	authenticateFn func(ctx context.Context, token string, now time.Time) (*domain.Identity, error)
}

func (s *stubAuthorizer) AuthenticateRequest(ctx context.Context, token string, now time.Time) (*domain.Identity, error) {
	return s.authenticateFn(ctx, token, now)
}

func (s *stubAuthorizer) RequireRole(identity *domain.Identity, required domain.Role) error {
	if identity == nil || identity.Role != required {
		return domain.ErrForbidden
	}
	return nil
}

func (s *stubAuthorizer) SetRole(context.Context, *domain.Identity, string, domain.Role) (*domain.Identity, error) {
	return nil, nil
}

func (s *stubAuthorizer) GetIdentity(context.Context, string) (*domain.Identity, error) {
	return nil, domain.ErrUserNotFound
}
