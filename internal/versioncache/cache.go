// Package versioncache holds the ephemeral identity -> token-version
// mapping the gateway consults on every request. Entries are written by the
// issuer after each durable commit and otherwise left to expire; absence is
// a meaningful state (no verifiable session), never papered over.
package versioncache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:token-version:"

// Cache exposes the two operations the protocol needs. No delete: a bumped
// version or TTL expiry is how entries die.
type Cache interface {
	// Set overwrites the cached version for the identity.
	Set(ctx context.Context, id string, version int, ttl time.Duration) error
	// Get returns the cached version as its canonical decimal string, or
	// "" with a nil error when no entry exists.
	Get(ctx context.Context, id string) (string, error)
}

// RedisCache implements Cache on a shared Redis instance so the issuer and
// the gateway see the same mapping.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func key(id string) string { return keyPrefix + id }

func (c *RedisCache) Set(ctx context.Context, id string, version int, ttl time.Duration) error {
	if err := c.client.Set(ctx, key(id), strconv.Itoa(version), ttl).Err(); err != nil {
		return fmt.Errorf("version cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (string, error) {
	v, err := c.client.Get(ctx, key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("version cache get: %w", err)
	}
	return v, nil
}
