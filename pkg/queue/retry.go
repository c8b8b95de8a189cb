package queue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	BackoffFixed                     Backoff = "fixed"
	BackoffExponential               Backoff = "exponential"
	BackoffExponentialWithMultiplier Backoff = "exponential_with_multiplier"
)

// Jitter selects how randomness is mixed into a computed backoff delay.
type Jitter string

const (
	JitterNone         Jitter = "none"
	JitterEqual        Jitter = "equal"
	JitterFull         Jitter = "full"
	JitterDecorrelated Jitter = "decorrelated"
)

// NonRetryable marks an error as exempt from retry: RetryPolicy.Run
// returns it immediately on the first attempt that produces one.
type NonRetryable struct {
	Err error
}

func (n NonRetryable) Error() string { return n.Err.Error() }
func (n NonRetryable) Unwrap() error { return n.Err }

// RetryPolicy configures how RetryPolicy.Run retries a failing operation.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64 // only used by BackoffExponentialWithMultiplier
	MaxDelay       time.Duration
	Backoff        Backoff
	Jitter         Jitter
	TimeoutCeiling time.Duration // 0 disables the ceiling

	OnRetry   func(attempt int, err error)
	OnSuccess func(attempt int)
	OnFailure func(attempt int, err error)
}

// delay returns the backoff delay before attempt (1-indexed: the delay
// preceding the 2nd attempt is delay(1)).
func (p RetryPolicy) delay(attempt int, rng *rand.Rand) time.Duration {
	var base time.Duration
	switch p.Backoff {
	case BackoffExponential:
		base = p.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	case BackoffExponentialWithMultiplier:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		base = time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	default: // BackoffFixed
		base = p.BaseDelay
	}
	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}
	return applyJitter(base, p.Jitter, rng)
}

func applyJitter(base time.Duration, j Jitter, rng *rand.Rand) time.Duration {
	switch j {
	case JitterEqual:
		half := base / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	case JitterFull:
		return time.Duration(rng.Int63n(int64(base) + 1))
	case JitterDecorrelated:
		// widen the window relative to base, loosely after AWS's
		// decorrelated-jitter recipe: sleep = random_between(base, sleep*3)
		upper := int64(base) * 3
		if upper <= 0 {
			return base
		}
		return time.Duration(int64(base) + rng.Int63n(upper-int64(base)+1))
	default: // JitterNone
		return base
	}
}

// Run invokes fn up to MaxAttempts times, sleeping between attempts per
// the configured backoff and jitter, and returns the last error once
// attempts are exhausted. A NonRetryable error short-circuits immediately.
// ctx cancellation aborts the wait between attempts.
func (p RetryPolicy) Run(ctx context.Context, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	runOne := func() error {
		if p.TimeoutCeiling <= 0 {
			return fn()
		}
		ctx, cancel := context.WithTimeout(ctx, p.TimeoutCeiling)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := runOne()
		if err == nil {
			if p.OnSuccess != nil {
				p.OnSuccess(attempt)
			}
			return nil
		}

		var nonRetryable NonRetryable
		if errors.As(err, &nonRetryable) {
			if p.OnFailure != nil {
				p.OnFailure(attempt, err)
			}
			return err
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		select {
		case <-time.After(p.delay(attempt, rng)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.OnFailure != nil {
		p.OnFailure(p.MaxAttempts, lastErr)
	}
	return lastErr
}
