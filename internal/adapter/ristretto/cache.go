// Package ristretto implements the cache port in process on dgraph-io/ristretto.
package ristretto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// minCost keeps NumCounters sensible for tiny configurations.
const minCost = 1 << 10

// Cache is a size-bounded in-process cache. Values are copied on the way in
// and out, so a caller never aliases a cached slice.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of keys plus values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes < minCost {
		maxCostBytes = minCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Queue status entries are a few hundred bytes; count ~10 keys per KiB.
		NumCounters: maxCostBytes / 100,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get returns a copy of the cached value.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

// Set stores a copy of value for ttl. Ristretto may refuse the write under
// contention; that is a cache miss later, not an error.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, bytes.Clone(value), int64(len(key)+len(value)), ttl)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Stats reports cumulative hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.c.Metrics.Hits(), c.c.Metrics.Misses()
}

// Wait blocks until buffered writes are applied. Sets are asynchronous, so a
// Get right after Set may miss without it.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
