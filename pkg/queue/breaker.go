package queue

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerState mirrors spec's closed/open/half-open vocabulary rather
// than exposing gobreaker's own State type to callers.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned by Breaker.Call when the breaker is open and
// the call is rejected without ever invoking the guarded function.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a Breaker. FailureThreshold counts consecutive
// failures (gobreaker's ConsecutiveFailures), not the originating
// system's cumulative-since-last-open count — see DESIGN.md for why.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration // how long the circuit stays open
	HalfOpenRequests uint32        // requests allowed through in half-open before closing
}

// Breaker wraps gobreaker.CircuitBreaker, translating its state and trip
// condition to the closed/open/half-open model spec.md describes:
// closed → open at a consecutive-failure threshold, open → half-open
// after Timeout elapses, half-open → closed after HalfOpenRequests
// consecutive successes, half-open → open on any failure.
type Breaker struct {
	inner *gobreaker.CircuitBreaker
}

// NewBreaker constructs a Breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{inner: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn if the breaker allows it, translating gobreaker's
// open-circuit rejection into ErrCircuitOpen.
func (b *Breaker) Call(fn func() error) error {
	_, err := b.inner.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the breaker's current state in spec vocabulary.
func (b *Breaker) State() BreakerState {
	switch b.inner.State() {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// CanRequest reports whether a call would currently be allowed through,
// without executing anything — useful for a throttling strategy that
// wants to check eligibility before queuing work.
func (b *Breaker) CanRequest() bool {
	return b.State() != BreakerOpen
}
