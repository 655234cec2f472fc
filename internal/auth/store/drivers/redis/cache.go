// Package redis implements store.Cache on Redis. Challenges are hashes that
// expire with the challenge; login failure counters are plain INCR keys.
package redis

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "tally"

type Cache struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewCache wraps client. Keys are namespaced under prefix, DefaultPrefix when empty.
func NewCache(client goredis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix, now: time.Now}
}

func (c *Cache) Challenges() store.Challenges {
	return &challengesRepo{client: c.client, prefix: c.prefix + ":mfa:", now: c.now}
}

func (c *Cache) LoginAttempts() store.LoginAttempts {
	return &loginAttemptsRepo{client: c.client, prefix: c.prefix + ":login_failures:"}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error { return c.client.Close() }
