package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crossledger/crossledger/internal/shared"
)

const keyCachePrefix = "users:apikey:"

// KeyCache memoises API-key lookups in Redis so the hot
// authentication path skips the database. Entries are short-lived
// and invalidated on key rotation.
type KeyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKeyCache instantiates the cache helper.
func NewKeyCache(client *redis.Client, ttl time.Duration) *KeyCache {
	return &KeyCache{client: client, ttl: ttl}
}

// Get returns the cached actor for an API key, if present.
func (c *KeyCache) Get(ctx context.Context, apiKey string) (shared.Actor, bool) {
	if c == nil || c.client == nil {
		return shared.Actor{}, false
	}
	raw, err := c.client.Get(ctx, keyCachePrefix+apiKey).Bytes()
	if err != nil {
		return shared.Actor{}, false
	}
	var actor shared.Actor
	if err := json.Unmarshal(raw, &actor); err != nil {
		return shared.Actor{}, false
	}
	return actor, true
}

// Set stores the actor under its API key.
func (c *KeyCache) Set(ctx context.Context, apiKey string, actor shared.Actor) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(actor)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, keyCachePrefix+apiKey, raw, c.ttl).Err()
}

// Invalidate drops a cached key, used when keys rotate.
func (c *KeyCache) Invalidate(ctx context.Context, apiKey string) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, keyCachePrefix+apiKey).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
