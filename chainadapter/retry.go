package chainadapter

import (
	"context"
	"time"
)

// DefaultRetryAttempts and DefaultRetryBaseDelay are the §4.1/§6.2 submission retry
// defaults: exponential backoff base_delay · 2^n, up to attempts tries.
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 5 * time.Second
)

// RetryPolicy computes the backoff schedule for chain submissions.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the §4.1/§6.2 default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultRetryAttempts,
		BaseDelay: DefaultRetryBaseDelay,
	}
}

// Delay returns the backoff delay before attempt n (0-indexed): base·2^n.
func (p RetryPolicy) Delay(n int) time.Duration {
	return p.BaseDelay * time.Duration(uint64(1)<<uint(n))
}

// SubmitFunc performs one submission attempt, returning the transaction ID
// on success. Errors not wrapped in an *AdapterError are treated as
// transient.
type SubmitFunc func(ctx context.Context) (txID string, err error)

// WithRetry runs fn up to policy.Attempts times with exponential backoff
// between attempts, stopping early on a non-transient AdapterError (e.g. an
// InvariantBreach should never be retried). If every attempt fails, the
// returned error is wrapped as ErrSubmitExhausted.
func WithRetry(ctx context.Context, chain ChainID, op string, policy RetryPolicy, fn SubmitFunc) (string, error) {
	var lastErr error

	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(policy.Delay(attempt - 1)):
			case <-ctx.Done():
				return "", NewAdapterError(ErrTransient, chain, op, ctx.Err())
			}
		}

		txID, err := fn(ctx)
		if err == nil {
			return txID, nil
		}

		if ae, ok := err.(*AdapterError); ok && ae.Kind != ErrTransient {
			return "", ae
		}

		lastErr = err
	}

	return "", NewAdapterError(ErrSubmitExhausted, chain, op, lastErr)
}
