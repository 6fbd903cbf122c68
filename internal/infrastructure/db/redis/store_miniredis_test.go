package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/avi-health/identity-service/internal/core/domain"
)

func newTestStore(t *testing.T, hooks ...redis.Hook) (*CredentialStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		client.AddHook(h)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewCredentialStore(client), mr
}

func newIdentity(username, email string) *domain.Identity {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Role:         domain.RoleUser,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

func keysWithPrefix(mr *miniredis.Miniredis, prefix string) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestCredentialStore_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	saved, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	byName, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, saved, byName)

	byEmail, err := store.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, saved.ID, byEmail.ID)

	ok, err := store.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.FindByUsername(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCredentialStore_ConcurrentInsertHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Save(ctx, newIdentity("alice", fmt.Sprintf("alice%d@x.com", i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			if field, ok := domain.ConflictField(err); ok && field == "username" {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.Equal(t, writers-1, conflicts)
	require.Len(t, keysWithPrefix(mr, "identity:id:"), 1)
	require.Len(t, keysWithPrefix(mr, "identity:email:"), 1)
}

func TestCredentialStore_EmailCollisionClaimsNothing(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.Save(ctx, newIdentity("alice", "shared@x.com"))
	require.NoError(t, err)

	_, err = store.Save(ctx, newIdentity("bob", "shared@x.com"))
	field, ok := domain.ConflictField(err)
	require.True(t, ok)
	require.Equal(t, "email", field)
	require.False(t, mr.Exists(usernameKey("bob")))

	_, err = store.Save(ctx, newIdentity("bob", "bob@x.com"))
	require.NoError(t, err)
}

func TestCredentialStore_UsernameChangeReindexes(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	alice, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err)

	alice.Username = "alicia"
	alice.Email = "alicia@x.com"
	updated, err := store.Save(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, alice.ID, updated.ID)

	_, err = store.FindByUsername(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = store.FindByEmail(ctx, "alice@x.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	require.False(t, mr.Exists(usernameKey("alice")))
	require.False(t, mr.Exists(emailKey("alice@x.com")))

	found, err := store.FindByUsername(ctx, "alicia")
	require.NoError(t, err)
	require.Equal(t, alice.ID, found.ID)

	_, err = store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err, "the released username can be taken again")
}

func TestCredentialStore_UpdateIntoTakenUsername(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err)
	bob, err := store.Save(ctx, newIdentity("bob", "bob@x.com"))
	require.NoError(t, err)

	bob.Username = "alice"
	_, err = store.Save(ctx, bob)
	field, ok := domain.ConflictField(err)
	require.True(t, ok)
	require.Equal(t, "username", field)

	still, err := store.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, bob.ID, still.ID)
}

func TestCredentialStore_UpdateUnknownID(t *testing.T) {
	store, _ := newTestStore(t)

	ghost := newIdentity("ghost", "ghost@x.com")
	ghost.ID = "01GHOST"
	_, err := store.Save(context.Background(), ghost)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCredentialStore_OrphanIndexKeyIsFree(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set(usernameKey("alice"), "01ORPHAN"))

	ok, err := store.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)

	saved, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err)

	owner, err := mr.Get(usernameKey("alice"))
	require.NoError(t, err)
	require.Equal(t, saved.ID, owner)
}

// lostReplyHook lets EVAL/EVALSHA run on the server, then reports a timeout
// to the caller as if the reply never arrived.
type lostReplyHook struct{}

func (lostReplyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (lostReplyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if err := next(ctx, cmd); err != nil {
			return err
		}
		switch cmd.Name() {
		case "eval", "evalsha":
			cmd.SetErr(context.DeadlineExceeded)
			return context.DeadlineExceeded
		}
		return nil
	}
}

func (lostReplyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestCredentialStore_LostReplyLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, lostReplyHook{})

	_, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	for _, key := range []string{usernameKey("alice"), emailKey("alice@x.com")} {
		owner, err := mr.Get(key)
		require.NoError(t, err)
		require.True(t, mr.Exists(idKey(owner)), "index key %s points at a missing record", key)
	}

	ok, err := store.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	found, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice@x.com", found.Email)
}

func TestCredentialStore_DeleteFreesIndexes(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	alice, err := store.Save(ctx, newIdentity("alice", "alice@x.com"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, alice.ID))

	require.Empty(t, mr.Keys())
	require.ErrorIs(t, store.Delete(ctx, alice.ID), domain.ErrUserNotFound)
}
