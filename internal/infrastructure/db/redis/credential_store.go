package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avi-health/identity-service/internal/core/domain"
	"github.com/avi-health/identity-service/internal/infrastructure/ids"
)

// Key layout:
//
//	identity:id:<id>              hash with the identity record
//	identity:username:<username>  string holding the owning id
//	identity:email:<email>        string holding the owning id
//
// Save runs as a single Lua script: the index checks, the index writes and
// the record write either all land or none do. An index key whose owner has
// no record hash is an orphan and counts as free.
const keyPrefix = "identity"

// saveScript keys: record, new username, new email, old username, old email.
// argv: id, mode ("insert" or "update"), record key prefix, then the hash
// field/value pairs.
var saveScript = redis.NewScript(`
local id, mode, recordPrefix = ARGV[1], ARGV[2], ARGV[3]
local exists = redis.call('EXISTS', KEYS[1])
if mode == 'insert' and exists == 1 then
  return redis.error_reply('conflict:id')
end
if mode == 'update' and exists == 0 then
  return redis.error_reply('not_found')
end

local function taken(key)
  local owner = redis.call('GET', key)
  if not owner or owner == id then
    return false
  end
  return redis.call('EXISTS', recordPrefix .. owner) == 1
end
if taken(KEYS[2]) then
  return redis.error_reply('conflict:username')
end
if taken(KEYS[3]) then
  return redis.error_reply('conflict:email')
end

for i = 4, 5 do
  if KEYS[i] ~= KEYS[i - 2] and redis.call('GET', KEYS[i]) == id then
    redis.call('DEL', KEYS[i])
  end
end
redis.call('SET', KEYS[2], id)
redis.call('SET', KEYS[3], id)
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
return 1
`)

// CredentialStore implements ports.CredentialStore on Redis.
type CredentialStore struct {
	client *redis.Client
}

// NewCredentialStore wraps an established Redis client.
func NewCredentialStore(client *redis.Client) *CredentialStore {
	return &CredentialStore{client: client}
}

type redisIdentity struct {
	ID           string `redis:"id"`
	Username     string `redis:"username"`
	Email        string `redis:"email"`
	PasswordHash string `redis:"password_hash"`
	Role         string `redis:"role"`
	CreatedAt    int64  `redis:"created_at"`
	UpdatedAt    int64  `redis:"updated_at"`
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	return s.findByIndex(ctx, usernameKey(username))
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.findByIndex(ctx, emailKey(email))
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	if id == "" {
		return nil, domain.ErrUserNotFound
	}
	res := s.client.HGetAll(ctx, idKey(id))
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrUserNotFound
	}

	var rec redisIdentity
	if err := res.Scan(&rec); err != nil {
		return nil, fmt.Errorf("redis scan identity: %w", err)
	}
	return toDomain(rec), nil
}

func (s *CredentialStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, usernameKey(username))
}

func (s *CredentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, emailKey(email))
}

func (s *CredentialStore) Save(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
	rec := fromDomain(identity)

	mode := "update"
	oldUsername, oldEmail := rec.Username, rec.Email
	if rec.ID == "" {
		id, err := ids.NewULID(time.Now())
		if err != nil {
			return nil, fmt.Errorf("new identity id: %w", err)
		}
		rec.ID = id
		mode = "insert"
	} else {
		prev, err := s.FindByID(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		oldUsername, oldEmail = prev.Username, prev.Email
	}

	keys := []string{
		idKey(rec.ID),
		usernameKey(rec.Username),
		emailKey(rec.Email),
		usernameKey(oldUsername),
		emailKey(oldEmail),
	}
	args := append([]any{rec.ID, mode, keyPrefix + ":id:"}, rec.fields()...)
	if err := saveScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return nil, mapScriptError(err)
	}
	return toDomain(rec), nil
}

func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	prev, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, idKey(id), usernameKey(prev.Username), emailKey(prev.Email)).Err(); err != nil {
		return fmt.Errorf("redis delete identity: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CredentialStore) findByIndex(ctx context.Context, key string) (*domain.Identity, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return s.FindByID(ctx, id)
}

// exists resolves the index key to its record so orphaned keys read as free.
func (s *CredentialStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.findByIndex(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

func mapScriptError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "conflict:username"):
		return domain.NewConflict("username")
	case strings.Contains(msg, "conflict:email"):
		return domain.NewConflict("email")
	case strings.Contains(msg, "conflict:id"):
		return domain.ErrUserExists
	case strings.Contains(msg, "not_found"):
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("redis save identity: %w", err)
}

func idKey(id string) string             { return keyPrefix + ":id:" + id }
func usernameKey(username string) string { return keyPrefix + ":username:" + username }
func emailKey(email string) string       { return keyPrefix + ":email:" + email }

func fromDomain(identity *domain.Identity) redisIdentity {
	return redisIdentity{
		ID:           identity.ID,
		Username:     identity.Username,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		Role:         string(identity.Role),
		CreatedAt:    identity.CreatedAt.Unix(),
		UpdatedAt:    identity.UpdatedAt.Unix(),
	}
}

func (r redisIdentity) fields() []any {
	return []any{
		"id", r.ID,
		"username", r.Username,
		"email", r.Email,
		"password_hash", r.PasswordHash,
		"role", r.Role,
		"created_at", r.CreatedAt,
		"updated_at", r.UpdatedAt,
	}
}

func toDomain(rec redisIdentity) *domain.Identity {
	role, err := domain.ParseRole(rec.Role)
	if err != nil {
		role = domain.RoleUser
	}
	return &domain.Identity{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         role,
		CreatedAt:    time.Unix(rec.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(rec.UpdatedAt, 0).UTC(),
	}
}
