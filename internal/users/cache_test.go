package users

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/crossledger/crossledger/internal/shared"
)

func testCache(t *testing.T) *KeyCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewKeyCache(client, time.Minute)
}

func TestKeyCacheRoundTrip(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "missing")
	require.False(t, ok)

	actor := shared.Actor{ID: 7, Email: "jo@example.com", Name: "Jo"}
	cache.Set(ctx, "key-1", actor)

	got, ok := cache.Get(ctx, "key-1")
	require.True(t, ok)
	require.Equal(t, actor, got)

	require.NoError(t, cache.Invalidate(ctx, "key-1"))
	_, ok = cache.Get(ctx, "key-1")
	require.False(t, ok)
}

func TestRotateAPIKeyInvalidatesCache(t *testing.T) {
	cache := testCache(t)
	service := NewService(newMemRepo()).WithKeyCache(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, "jo@example.com", "Jo", "correct horse")
	require.NoError(t, err)

	// Prime the cache.
	actor, err := service.ActorForAPIKey(ctx, created.APIKey)
	require.NoError(t, err)
	require.Equal(t, created.ID, actor.ID)
	_, ok := cache.Get(ctx, created.APIKey)
	require.True(t, ok)

	_, err = service.RotateAPIKey(ctx, created.ID)
	require.NoError(t, err)

	_, ok = cache.Get(ctx, created.APIKey)
	require.False(t, ok)
	_, err = service.ActorForAPIKey(ctx, created.APIKey)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
