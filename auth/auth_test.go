package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/evermind-ai/evermind/auth"
)

func newStore(t *testing.T) *auth.Store {
	t.Helper()
	store, err := auth.Open(filepath.Join(t.TempDir(), "users.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	ownerID, err := store.Register(ctx, "alice@example.com", "s3cret")
	gt.NoError(t, err)
	gt.True(t, ownerID != "")

	resolved, err := store.Authenticate(ctx, "alice@example.com", "s3cret")
	gt.NoError(t, err)
	gt.Equal(t, resolved, ownerID)

	// Email matching is case-insensitive.
	resolved, err = store.Authenticate(ctx, "Alice@Example.com", "s3cret")
	gt.NoError(t, err)
	gt.Equal(t, resolved, ownerID)
}

func TestAuthenticate_Failures(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Register(ctx, "alice@example.com", "s3cret")
	gt.NoError(t, err)

	_, err = store.Authenticate(ctx, "alice@example.com", "wrong")
	gt.True(t, errors.Is(err, auth.ErrInvalidCredentials))

	_, err = store.Authenticate(ctx, "nobody@example.com", "s3cret")
	gt.True(t, errors.Is(err, auth.ErrInvalidCredentials))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Register(ctx, "alice@example.com", "one")
	gt.NoError(t, err)

	_, err = store.Register(ctx, "alice@example.com", "two")
	gt.True(t, errors.Is(err, auth.ErrEmailTaken))
}

func TestRegister_RequiredFields(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Register(ctx, "", "pw")
	gt.Error(t, err)
	_, err = store.Register(ctx, "a@b.c", "")
	gt.Error(t, err)
}

func TestSessions(t *testing.T) {
	store := newStore(t)

	token := store.CreateSession("owner-1")
	ownerID, ok := store.Resolve(token)
	gt.True(t, ok)
	gt.Equal(t, ownerID, "owner-1")

	store.Revoke(token)
	_, ok = store.Resolve(token)
	gt.True(t, !ok)

	_, ok = store.Resolve("never-issued")
	gt.True(t, !ok)
}
