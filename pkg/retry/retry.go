package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FatalError stops a retry loop when IsFatal reports true.
type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) IsFatal() bool {
	return true
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// NewFatalError marks err as permanent: the retry loop stops and returns it.
func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Policy bounds a retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// OnRetry is called once before every retry, never after the final attempt.
type OnRetry func(attempt int, err error, nextDelay time.Duration)

// Do runs fn until it succeeds, returns a FatalError, or the policy is
// exhausted. The last error is returned unwrapped from the retry markers.
func Do[T any](ctx context.Context, policy Policy, fn func() (T, error), onRetry OnRetry) (T, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = DefaultPolicy().Multiplier
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}

	b := newBackOff(policy)
	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))

	attempt := 0
	var value T
	operation := func() error {
		attempt++
		v, err := fn()

		if err == nil {
			value = v
			return nil
		}

		var fatalErr FatalError
		if errors.As(err, &fatalErr) && fatalErr.IsFatal() {
			return backoff.Permanent(err)
		}

		if onRetry != nil && attempt < policy.MaxAttempts && ctx.Err() == nil {
			nextDelay := CalculateBackoffDuration(attempt-1, policy.InitialInterval, policy.Multiplier, policy.MaxInterval)
			onRetry(attempt, err, nextDelay)
		}

		return err
	}

	if err := backoff.Retry(operation, b); err != nil {
		var zero T
		return zero, unwrapMarker(err)
	}
	return value, nil
}

func unwrapMarker(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	var fatalErr *fatalError
	if errors.As(err, &fatalErr) {
		return fatalErr.err
	}
	return err
}
