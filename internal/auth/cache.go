package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedMarker = "revoked"

// SessionCache keeps resolved sessions close to the request path.
type SessionCache interface {
	// Get returns (nil, false, nil) on a miss and (nil, true, nil) when the
	// session has been revoked.
	Get(ctx context.Context, id string) (*Session, bool, error)
	// Fill stores the session unless a value is already present.
	Fill(ctx context.Context, s Session, ttl time.Duration) error
	// Revoke replaces any cached value with a revocation marker.
	Revoke(ctx context.Context, id string, ttl time.Duration) error
}

// RedisSessionCache stores sessions in Redis under session:<id>.
type RedisSessionCache struct {
	client *redis.Client
}

// NewRedisSessionCache constructs the cache.
func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) key(id string) string {
	return "session:" + id
}

// Get loads a cached session.
func (c *RedisSessionCache) Get(ctx context.Context, id string) (*Session, bool, error) {
	payload, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(payload) == revokedMarker {
		return nil, true, nil
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, false, err
	}
	return &s, false, nil
}

// Fill caches a session loaded from storage. SetNX keeps a concurrent
// revocation marker from being overwritten by a stale read.
func (c *RedisSessionCache) Fill(ctx context.Context, s Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, c.key(s.SessionID), payload, ttl).Err()
}

// Revoke marks the session as revoked for the rest of its lifetime.
func (c *RedisSessionCache) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return c.client.Set(ctx, c.key(id), revokedMarker, ttl).Err()
}
