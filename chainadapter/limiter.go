package chainadapter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentSubmissions is §5's "bounded concurrent-submission
// counter per chain (default 16)" that keeps the Resolver's worker pool
// from flooding a chain backend's RPC connection when many orders settle
// at once.
const DefaultMaxConcurrentSubmissions = 16

// SubmitLimiter bounds how many Submit calls a single adapter instance
// runs concurrently. It wraps golang.org/x/sync/semaphore.Weighted rather
// than a bare buffered channel so Acquire can respect ctx cancellation
// while a caller waits for a slot.
type SubmitLimiter struct {
	sem *semaphore.Weighted
}

// NewSubmitLimiter constructs a SubmitLimiter allowing up to max concurrent
// submissions. max <= 0 falls back to DefaultMaxConcurrentSubmissions.
func NewSubmitLimiter(max int) *SubmitLimiter {
	if max <= 0 {
		max = DefaultMaxConcurrentSubmissions
	}
	return &SubmitLimiter{sem: semaphore.NewWeighted(int64(max))}
}

// Run acquires a slot, runs fn, and releases the slot, returning whatever
// fn returns. If ctx is cancelled before a slot frees up, Run returns
// ctx.Err() wrapped as an ErrCapacity AdapterError without running fn,
// mirroring §7's "cannot proceed for want of resources" semantics for
// ErrCapacity.
func (l *SubmitLimiter) Run(ctx context.Context, chain ChainID, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", NewAdapterError(ErrCapacity, chain, op, err)
	}
	defer l.sem.Release(1)
	return fn(ctx)
}
