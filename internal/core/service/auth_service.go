package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/core/ports"
)

// dummyPassword is hashed once so that logins for unknown identities still
// pay for one hash comparison.
const dummyPassword = "avi-health-dummy-password"

// AuthService implements registration, login and self-service account changes.
type AuthService struct {
	store     ports.CredentialStore
	hasher    ports.PasswordHasher
	tokens    ports.TokenCodec
	audit     ports.AuditSink
	validate  *validator.Validate
	log       zerolog.Logger
	clock     func() time.Time
	dummyHash string
}

func NewAuthService(
	store ports.CredentialStore,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	audit ports.AuditSink,
	log zerolog.Logger,
) *AuthService {
	if audit == nil {
		audit = nopSink{}
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		log.Warn().Err(err).Msg("could not prepare dummy hash")
	}
	return &AuthService{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		audit:     audit,
		validate:  validator.New(),
		log:       log,
		clock:     time.Now,
		dummyHash: dummy,
	}
}

// Register creates a new identity with the default user role.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.Identity, error) {
	created, err := s.create(ctx, username, email, password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	s.audit.Publish(domain.AuthEvent{Kind: domain.EventRegistered, Subject: created.ID, At: created.CreatedAt})
	return created, nil
}

// create normalizes and validates the fields, checks uniqueness, hashes the
// password and persists the identity with role in a single write.
func (s *AuthService) create(ctx context.Context, username, email, password string, role domain.Role) (*domain.Identity, error) {
	username = domain.NormalizeUsername(username)
	email = domain.NormalizeEmail(email)
	if err := s.validateIdentityFields(username, email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	if err := s.checkUnique(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.clock().UTC()
	created, err := s.store.Save(ctx, &domain.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			s.log.Info().Str("username", username).Err(err).Msg("registration lost uniqueness race")
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return created, nil
}

// Login verifies a username (or email) and password and issues a token.
// Unknown identities and wrong passwords are indistinguishable to callers.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (string, *domain.Identity, error) {
	now := s.clock()
	if usernameOrEmail == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	identity, err := s.lookup(ctx, usernameOrEmail)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, fmt.Errorf("login: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		s.loginFailed(usernameOrEmail, "unknown_user", now)
		return "", nil, domain.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, identity.PasswordHash) {
		s.loginFailed(identity.ID, "bad_password", now)
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(identity.ID, identity.Role, now)
	if err != nil {
		return "", nil, fmt.Errorf("login: issue token: %w", err)
	}

	s.audit.Publish(domain.AuthEvent{Kind: domain.EventLoginSucceeded, Subject: identity.ID, At: now.UTC()})
	return token, identity, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) (*domain.Identity, error) {
	if newPassword == "" {
		return nil, fmt.Errorf("%w: new password is required", domain.ErrInvalidInput)
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(currentPassword, identity.PasswordHash) {
		s.log.Info().Str("identity_id", identityID).Msg("password change rejected: current password mismatch")
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("change password: %w", err)
	}

	now := s.clock().UTC()
	identity.PasswordHash = hash
	identity.UpdatedAt = now

	saved, err := s.store.Save(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("change password: %w", err)
	}

	s.audit.Publish(domain.AuthEvent{Kind: domain.EventPasswordChanged, Subject: identityID, At: now})
	return saved, nil
}

// UpdateProfile changes username and email, re-checking uniqueness only for
// the fields that actually change.
func (s *AuthService) UpdateProfile(ctx context.Context, identityID, username, email string) (*domain.Identity, error) {
	username = domain.NormalizeUsername(username)
	email = domain.NormalizeEmail(email)
	if err := s.validateIdentityFields(username, email); err != nil {
		return nil, err
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if identity.Username != username {
		taken, err := s.store.ExistsByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if taken {
			return nil, domain.NewConflict("username")
		}
	}
	if identity.Email != email {
		taken, err := s.store.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if taken {
			return nil, domain.NewConflict("email")
		}
	}

	now := s.clock().UTC()
	identity.Username = username
	identity.Email = email
	identity.UpdatedAt = now

	saved, err := s.store.Save(ctx, identity)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.audit.Publish(domain.AuthEvent{Kind: domain.EventProfileUpdated, Subject: identityID, At: now})
	return saved, nil
}

// ErrAdminSeedConflict is returned by SeedAdmin when the configured admin
// username or email already belongs to an account that is not that admin.
var ErrAdminSeedConflict = errors.New("admin seed conflicts with an existing account")

// SeedAdmin makes sure an admin identity exists. A fresh admin is written
// with its role in one Save. An existing identity is accepted only when it
// is an admin owning both the username and the email.
func (s *AuthService) SeedAdmin(ctx context.Context, username, email, password string) (*domain.Identity, bool, error) {
	username = domain.NormalizeUsername(username)
	email = domain.NormalizeEmail(email)

	byUsername, err := s.findOptional(ctx, s.store.FindByUsername, username)
	if err != nil {
		return nil, false, fmt.Errorf("seed admin: %w", err)
	}
	byEmail, err := s.findOptional(ctx, s.store.FindByEmail, email)
	if err != nil {
		return nil, false, fmt.Errorf("seed admin: %w", err)
	}

	switch {
	case byUsername == nil && byEmail == nil:
		admin, err := s.create(ctx, username, email, password, domain.RoleAdmin)
		if err != nil {
			return nil, false, fmt.Errorf("seed admin: %w", err)
		}
		s.audit.Publish(domain.AuthEvent{Kind: domain.EventRegistered, Subject: admin.ID, Actor: "system", At: admin.CreatedAt})
		s.audit.Publish(domain.AuthEvent{
			Kind:    domain.EventRoleChanged,
			Subject: admin.ID,
			Actor:   "system",
			Reason:  "seed->" + domain.RoleAdmin.String(),
			At:      admin.CreatedAt,
		})
		return admin, true, nil
	case byUsername == nil || byEmail == nil:
		return nil, false, fmt.Errorf("%w: only one of username %q and email %q is taken", ErrAdminSeedConflict, username, email)
	case byUsername.ID != byEmail.ID:
		return nil, false, fmt.Errorf("%w: username and email belong to different accounts", ErrAdminSeedConflict)
	case !byUsername.IsAdmin():
		return nil, false, fmt.Errorf("%w: %q exists with role %s", ErrAdminSeedConflict, username, byUsername.Role)
	}
	return byUsername, false, nil
}

// findOptional runs find and maps ErrUserNotFound to a nil identity.
func (s *AuthService) findOptional(ctx context.Context, find func(context.Context, string) (*domain.Identity, error), key string) (*domain.Identity, error) {
	identity, err := find(ctx, key)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	return identity, err
}

func (s *AuthService) validateIdentityFields(username, email string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: email must be a valid address", domain.ErrInvalidInput)
	}
	return nil
}

// checkUnique reports username collisions before email collisions.
func (s *AuthService) checkUnique(ctx context.Context, username, email string) error {
	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if taken {
		s.log.Info().Str("field", "username").Msg("registration conflict")
		return domain.NewConflict("username")
	}

	taken, err = s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if taken {
		s.log.Info().Str("field", "email").Msg("registration conflict")
		return domain.NewConflict("email")
	}
	return nil
}

// lookup resolves a login name by username first, then by email when the
// name looks like an address.
func (s *AuthService) lookup(ctx context.Context, usernameOrEmail string) (*domain.Identity, error) {
	identity, err := s.store.FindByUsername(ctx, domain.NormalizeUsername(usernameOrEmail))
	if err == nil || !errors.Is(err, domain.ErrUserNotFound) || !strings.Contains(usernameOrEmail, "@") {
		return identity, err
	}
	return s.store.FindByEmail(ctx, domain.NormalizeEmail(usernameOrEmail))
}

func (s *AuthService) loginFailed(subject, reason string, now time.Time) {
	s.log.Info().Str("subject", subject).Str("reason", reason).Msg("login failed")
	s.audit.Publish(domain.AuthEvent{Kind: domain.EventLoginFailed, Subject: subject, Reason: reason, At: now.UTC()})
}

type nopSink struct{}

func (nopSink) Publish(domain.AuthEvent) {}
