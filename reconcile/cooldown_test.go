package reconcile_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ticket-client/internal/redisclient"
	"github.com/jrsteele09/go-ticket-client/reconcile"
	"github.com/stretchr/testify/require"
)

func testCooldownStore(t *testing.T, s reconcile.CooldownStore) {
	t.Helper()
	ctx := context.Background()
	sub := "cooldown-" + uuid.NewString()
	window := 30 * time.Second

	ok, err := s.TryMark(ctx, sub, now, window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryMark(ctx, sub, now.Add(10*time.Second), window)
	require.NoError(t, err)
	require.False(t, ok)

	other := "cooldown-" + uuid.NewString()
	ok, err = s.TryMark(ctx, other, now, window)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("one claim among concurrent callers", func(t *testing.T) {
		sub := "cooldown-" + uuid.NewString()
		var (
			wg      sync.WaitGroup
			claimed atomic.Int32
			failed  atomic.Int32
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.TryMark(ctx, sub, now, window)
				switch {
				case err != nil:
					failed.Add(1)
				case ok:
					claimed.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Zero(t, failed.Load())
		require.EqualValues(t, 1, claimed.Load())
	})
}

func TestInMemoryCooldown(t *testing.T) {
	testCooldownStore(t, reconcile.NewInMemoryCooldown())

	t.Run("claim after the window", func(t *testing.T) {
		ctx := context.Background()
		s := reconcile.NewInMemoryCooldown()
		require.NoError(t, s.MarkAttempt(ctx, "user-1", now.Add(-31*time.Second)))

		ok, err := s.TryMark(ctx, "user-1", now, 30*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		at, found, err := s.LastAttempt(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, now.Equal(at))
	})
}

func TestRedisCooldown(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := redisclient.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	testCooldownStore(t, reconcile.NewRedisCooldown(client))
}
