package smartlead

import (
	"context"
	"errors"
	"testing"
)

func TestBackoff_ExhaustsAttempts(t *testing.T) {
	retries := (&FailConfig{Base: 1, Cap: 2, Jitter: 1, MaxAttempts: 3}).NewRetries()

	for i := 0; i < 2; i++ {
		if err := retries.Backoff(context.Background()); err != nil {
			t.Fatalf("attempt %d should be within budget, got %v", i+1, err)
		}
	}

	err := retries.Backoff(context.Background())
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestBackoff_CancelledContext(t *testing.T) {
	retries := (&FailConfig{Base: 60_000, Cap: 60_000, Jitter: 1, MaxAttempts: 5}).NewRetries()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retries.Backoff(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
