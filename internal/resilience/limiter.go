package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of concurrent calls through it with a weighted
// semaphore. A nil Limiter runs every call directly.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter allows at most limit concurrent calls. Limits below 1 clamp to 1.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn and releases the slot. It blocks while all
// slots are busy and returns ctx.Err() if ctx ends first.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if l == nil || l.sem == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}
