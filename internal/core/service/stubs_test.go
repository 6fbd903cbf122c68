package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/infrastructure/crypto"
	"github.com/avi-health/identity-service/internal/infrastructure/token"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stubStore is an in-memory CredentialStore that enforces uniqueness on Save.
type stubStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Identity
	nextID  int
	saveErr error
	findErr error
}

func newStubStore() *stubStore {
	return &stubStore{byID: make(map[string]*domain.Identity)}
}

func (s *stubStore) FindByUsername(_ context.Context, username string) (*domain.Identity, error) {
	return s.find(func(i *domain.Identity) bool { return i.Username == username })
}

func (s *stubStore) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return s.find(func(i *domain.Identity) bool { return i.Email == email })
}

func (s *stubStore) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	return s.find(func(i *domain.Identity) bool { return i.ID == id })
}

func (s *stubStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.FindByUsername(ctx, username)
	return err == nil, nil
}

func (s *stubStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	return err == nil, nil
}

func (s *stubStore) Save(_ context.Context, identity *domain.Identity) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	for id, other := range s.byID {
		if id == identity.ID {
			continue
		}
		if other.Username == identity.Username {
			return nil, domain.NewConflict("username")
		}
		if other.Email == identity.Email {
			return nil, domain.NewConflict("email")
		}
	}

	saved := identity.Clone()
	if saved.ID == "" {
		s.nextID++
		saved.ID = "id-" + strconv.Itoa(s.nextID)
	} else if _, ok := s.byID[saved.ID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	s.byID[saved.ID] = saved
	return saved.Clone(), nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *stubStore) find(match func(*domain.Identity) bool) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, identity := range s.byID {
		if match(identity) {
			return identity.Clone(), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) get(id string) *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].Clone()
}

// recordingSink captures published audit events.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *recordingSink) Publish(event domain.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) kinds() []domain.AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuthEventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recordingSink) last() domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// countingHasher counts Verify calls on top of the real bcrypt hasher.
type countingHasher struct {
	*crypto.BcryptHasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(plaintext, storedHash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.BcryptHasher.Verify(plaintext, storedHash)
}

func (h *countingHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type fixture struct {
	store  *stubStore
	hasher *countingHasher
	codec  *token.JWTCodec
	sink   *recordingSink
	auth   *AuthService
	authz  *Authorizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := token.NewJWTCodec(token.Config{Secret: strings.Repeat("s", 32), TTL: time.Hour})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	f := &fixture{
		store:  newStubStore(),
		hasher: &countingHasher{BcryptHasher: crypto.NewBcryptHasher(bcrypt.MinCost)},
		codec:  codec,
		sink:   &recordingSink{},
	}
	f.auth = NewAuthService(f.store, f.hasher, f.codec, f.sink, zerolog.Nop())
	f.auth.clock = func() time.Time { return t0 }
	f.authz = NewAuthorizer(f.store, f.codec, f.sink, zerolog.Nop())
	f.authz.clock = func() time.Time { return t0 }
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string) *domain.Identity {
	t.Helper()
	identity, err := f.auth.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return identity
}

func (f *fixture) promote(t *testing.T, id string) {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.byID[id].Role = domain.RoleAdmin
}
