package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyRetriesUntilSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}
	err := policy.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBlockArg(t *testing.T) {
	if blockArg(0) != nil {
		t.Fatalf("block 0 must map to latest")
	}
	if got := blockArg(42); got.Uint64() != 42 {
		t.Fatalf("unexpected block arg %s", got)
	}
}
