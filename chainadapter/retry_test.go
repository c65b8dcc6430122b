package chainadapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	attempts := 0

	txID, err := WithRetry(context.Background(), "chainA", "submit", policy,
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", NewAdapterError(ErrTransient, "chainA", "submit", errors.New("timeout"))
			}
			return "abc123", nil
		})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if txID != "abc123" {
		t.Fatalf("unexpected txID: %v", txID)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryExhaustsAndWrapsSubmitExhausted(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	_, err := WithRetry(context.Background(), "chainA", "submit", policy,
		func(ctx context.Context) (string, error) {
			return "", NewAdapterError(ErrTransient, "chainA", "submit", errors.New("timeout"))
		})

	ae, ok := err.(*AdapterError)
	if !ok {
		t.Fatalf("expected *AdapterError, got %T", err)
	}
	if ae.Kind != ErrSubmitExhausted {
		t.Fatalf("expected ErrSubmitExhausted, got %v", ae.Kind)
	}
}

func TestWithRetryStopsEarlyOnInvariantBreach(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	attempts := 0

	_, err := WithRetry(context.Background(), "chainA", "submit", policy,
		func(ctx context.Context) (string, error) {
			attempts++
			return "", NewAdapterError(ErrInvariantBreach, "chainA", "submit", errors.New("hashlock mismatch"))
		})

	ae, ok := err.(*AdapterError)
	if !ok {
		t.Fatalf("expected *AdapterError, got %T", err)
	}
	if ae.Kind != ErrInvariantBreach {
		t.Fatalf("expected ErrInvariantBreach to propagate untouched, got %v", ae.Kind)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}
