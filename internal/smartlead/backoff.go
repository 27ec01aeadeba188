package smartlead

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// FailConfig holds parameters for the exponential backoff algorithm,
// base/cap/jitter in milliseconds.
type FailConfig struct {
	Base        int64
	Cap         int64
	Jitter      int64
	MaxAttempts int
}

var DefaultFailConfig = &FailConfig{Base: 250, Cap: 15_000, Jitter: 250, MaxAttempts: 4}

func (f *FailConfig) NewRetries() *Retries {
	return &Retries{base: f.Base, cap: f.Cap, jitter: f.Jitter, max: f.MaxAttempts}
}

type Retries struct {
	base    int64
	cap     int64
	jitter  int64
	max     int
	attempt int
}

// Backoff sleeps for the next exponential backoff interval with full jitter.
// It returns ErrMaxRetriesExceeded once the attempt budget is spent and the
// context error if cancelled while waiting.
func (r *Retries) Backoff(ctx context.Context) error {
	r.attempt++
	if r.attempt >= r.max {
		return ErrMaxRetriesExceeded
	}

	sleep := r.base * int64(math.Pow(2.0, float64(r.attempt)))
	if sleep > r.cap {
		sleep = r.cap
	}
	wait := time.Duration(sleep+rand.Int63n(r.jitter+1)) * time.Millisecond

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
