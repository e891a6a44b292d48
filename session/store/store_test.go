package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/internal/redisclient"
	"github.com/jrsteele09/go-ticket-client/session/store"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)

	user := &identity.User{ID: "kc-1", Username: "jdoe", Roles: []identity.Role{identity.RoleUser}}
	saved := store.Snapshot{User: user, Token: "tok-1", Authenticated: true, SavedAt: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, s.Save(ctx, saved))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, saved, *loaded)

	user.Roles[0] = identity.RoleAdmin
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, identity.RoleUser, loaded.User.Roles[0], "stored snapshot is isolated from caller")

	saved.Token = "tok-2"
	require.NoError(t, s.Save(ctx, saved))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-2", loaded.Token)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestInMemory(t *testing.T) {
	testStore(t, store.NewInMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	testStore(t, store.NewFile(path))
}

func TestFile_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := store.NewFile(path)
	require.NoError(t, s.Save(context.Background(), store.Snapshot{Token: "t"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := redisclient.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	testStore(t, store.NewRedis(client, "test-"+uuid.NewString(), store.WithTTL(time.Minute)))
}
