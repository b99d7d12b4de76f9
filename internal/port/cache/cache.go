// Package cache defines the port for short-lived read caches such as the
// per-business queue status.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores opaque values by key. Implementations own the bytes they
// return: callers may keep or modify them freely. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// keyVersion changes whenever the encoding of a cached value changes, so a
// shared cache never serves a stale shape.
const keyVersion = "v1"

// QueueStatusKey is the key of a business's queue status summary. Keys use
// only characters that NATS KV accepts.
func QueueStatusKey(businessID string) string {
	return keyVersion + ".queue-status." + businessID
}

// IdempotencyKey is the key of a stored reply for one client key on one
// method and path. The client key is hashed so any header value is safe.
func IdempotencyKey(method, path, clientKey string) string {
	sum := sha256.Sum256([]byte(method + " " + path + "\x00" + clientKey))
	return keyVersion + ".idempotency." + hex.EncodeToString(sum[:])
}
