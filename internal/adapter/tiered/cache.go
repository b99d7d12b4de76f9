// Package tiered layers a fast local cache over a shared one.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/taskcrew/internal/port/cache"
)

// Cache reads the local level first and falls back to the shared level,
// copying shared hits into the local one. Local entries live at most
// localTTL, which bounds how long a replica can serve a value another
// replica has already invalidated.
type Cache struct {
	local    cache.Cache
	shared   cache.Cache
	localTTL time.Duration
}

// New combines local and shared. A non-positive localTTL means entries use the
// caller's ttl at both levels.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

// Get returns the local entry, else the shared one.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, err := c.local.Get(ctx, key); err == nil && found {
		return val, true, nil
	}
	val, found, err := c.shared.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	_ = c.local.Set(ctx, key, val, c.clamp(0))
	return val, true, nil
}

// Set writes both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Join(
		c.local.Set(ctx, key, value, c.clamp(ttl)),
		c.shared.Set(ctx, key, value, ttl),
	)
}

// Delete removes key from both levels, attempting both even if one fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.local.Delete(ctx, key), c.shared.Delete(ctx, key))
}

func (c *Cache) clamp(ttl time.Duration) time.Duration {
	if c.localTTL <= 0 {
		return ttl
	}
	if ttl <= 0 || ttl > c.localTTL {
		return c.localTTL
	}
	return ttl
}
