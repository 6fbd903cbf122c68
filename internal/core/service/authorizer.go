package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/core/ports"
)

// Authorizer turns presented tokens into live identities and guards
// role-gated operations.
type Authorizer struct {
	store  ports.CredentialStore
	tokens ports.TokenCodec
	audit  ports.AuditSink
	log    zerolog.Logger
	clock  func() time.Time
}

func NewAuthorizer(store ports.CredentialStore, tokens ports.TokenCodec, audit ports.AuditSink, log zerolog.Logger) *Authorizer {
	if audit == nil {
		audit = nopSink{}
	}
	return &Authorizer{store: store, tokens: tokens, audit: audit, log: log, clock: time.Now}
}

// AuthenticateRequest verifies the token and reloads the identity it names.
// The role embedded in the token is not trusted; the stored role wins.
func (a *Authorizer) AuthenticateRequest(ctx context.Context, token string, now time.Time) (*domain.Identity, error) {
	claims, err := a.tokens.Verify(token, now)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		a.log.Debug().Err(err).Msg("token rejected")
		return nil, domain.ErrTokenInvalid
	}

	identity, err := a.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			a.log.Info().Str("subject", claims.Subject).Msg("token subject no longer exists")
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if identity.Role != claims.Role {
		a.log.Debug().
			Str("identity_id", identity.ID).
			Str("token_role", claims.Role.String()).
			Str("live_role", identity.Role.String()).
			Msg("token role is stale, using stored role")
	}
	return identity, nil
}

// RequireRole is an exact-match check; admin does not satisfy a user gate.
func (a *Authorizer) RequireRole(identity *domain.Identity, required domain.Role) error {
	if identity == nil || identity.Role != required {
		return domain.ErrForbidden
	}
	return nil
}

// SetRole changes the role of target. Only admins may call it.
func (a *Authorizer) SetRole(ctx context.Context, acting *domain.Identity, targetID string, role domain.Role) (*domain.Identity, error) {
	if err := a.RequireRole(acting, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	target, err := a.store.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	now := a.clock().UTC()
	previous := target.Role
	target.Role = role
	target.UpdatedAt = now

	saved, err := a.store.Save(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}

	a.log.Info().
		Str("actor", acting.ID).
		Str("target", targetID).
		Str("from", previous.String()).
		Str("to", role.String()).
		Msg("role changed")
	a.audit.Publish(domain.AuthEvent{
		Kind:    domain.EventRoleChanged,
		Subject: targetID,
		Actor:   acting.ID,
		Reason:  previous.String() + "->" + role.String(),
		At:      now,
	})
	return saved, nil
}

// GetIdentity loads an identity by id.
func (a *Authorizer) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	return a.store.FindByID(ctx, id)
}
