// Package memory provides an in-process credential store. It backs the
// "memory" store backend and the service tests; contents are lost on exit.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/infrastructure/ids"
)

// CredentialStore implements ports.CredentialStore. One mutex covers the
// uniqueness check and the write, so concurrent inserts of the same username
// cannot both succeed.
type CredentialStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Identity
	byUsername map[string]string
	byEmail    map[string]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID:       make(map[string]*domain.Identity),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *CredentialStore) FindByUsername(_ context.Context, username string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.byUsername[username])
}

func (s *CredentialStore) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.byEmail[email])
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

func (s *CredentialStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *CredentialStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *CredentialStore) Save(_ context.Context, identity *domain.Identity) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := identity.Clone()
	var prev *domain.Identity
	if rec.ID != "" {
		var ok bool
		if prev, ok = s.byID[rec.ID]; !ok {
			return nil, domain.ErrUserNotFound
		}
	}

	if owner, ok := s.byUsername[rec.Username]; ok && owner != rec.ID {
		return nil, domain.NewConflict("username")
	}
	if owner, ok := s.byEmail[rec.Email]; ok && owner != rec.ID {
		return nil, domain.NewConflict("email")
	}

	if rec.ID == "" {
		id, err := ids.NewULID(time.Now())
		if err != nil {
			return nil, err
		}
		rec.ID = id
	} else {
		delete(s.byUsername, prev.Username)
		delete(s.byEmail, prev.Email)
	}

	s.byID[rec.ID] = rec
	s.byUsername[rec.Username] = rec.ID
	s.byEmail[rec.Email] = rec.ID
	return rec.Clone(), nil
}

func (s *CredentialStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(s.byUsername, rec.Username)
	delete(s.byEmail, rec.Email)
	delete(s.byID, id)
	return nil
}

// Ping always succeeds; it lets the readiness probe treat all backends alike.
func (s *CredentialStore) Ping(context.Context) error { return nil }

func (s *CredentialStore) findLocked(id string) (*domain.Identity, error) {
	rec, ok := s.byID[id]
	if !ok || id == "" {
		return nil, domain.ErrUserNotFound
	}
	return rec.Clone(), nil
}
