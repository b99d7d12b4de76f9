package cache

import (
	"regexp"
	"testing"
)

// kvSafe is the key alphabet accepted by NATS JetStream KV.
var kvSafe = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"queue status", QueueStatusKey("6f1c2a3e-0b7d-4c55-9a0e-2f4d1b8c7e91")},
		{"idempotency", IdempotencyKey("POST", "/api/v1/businesses/b1/tasks", "client key with spaces: ü")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !kvSafe.MatchString(tt.key) {
				t.Errorf("key %q has characters NATS KV rejects", tt.key)
			}
		})
	}
}

func TestIdempotencyKeyScope(t *testing.T) {
	base := IdempotencyKey("POST", "/a", "k")
	if base != IdempotencyKey("POST", "/a", "k") {
		t.Fatal("key is not deterministic")
	}
	for _, other := range []string{
		IdempotencyKey("PUT", "/a", "k"),
		IdempotencyKey("POST", "/b", "k"),
		IdempotencyKey("POST", "/a", "k2"),
	} {
		if other == base {
			t.Errorf("distinct requests share key %q", base)
		}
	}
}
