package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryableError marks an error as safe to retry. Errors that implement
// neither RetryableError nor FatalError are treated as retryable.
type RetryableError interface {
	error
	IsRetryable() bool
}

// FatalError short-circuits the retry loop.
type FatalError interface {
	error
	IsFatal() bool
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string     { return e.err.Error() }
func (e *retryableError) IsRetryable() bool { return true }
func (e *retryableError) Unwrap() error     { return e.err }

func NewRetryableError(err error) RetryableError {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) IsFatal() bool { return true }
func (e *fatalError) Unwrap() error { return e.err }

func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// Retry runs fn with exponential backoff until it succeeds, returns a fatal
// error, or the policy is exhausted.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

// RetryWithCallback is Retry with a hook invoked before each backoff sleep.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	b := policyBackoff(policy)
	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		var fatal FatalError
		if errors.As(err, &fatal) {
			return backoff.Permanent(err)
		}

		var retryable RetryableError
		if !errors.As(err, &retryable) {
			err = NewRetryableError(err)
		}

		if onRetry != nil && attempt < policy.MaxAttempts {
			nextDelay := CalculateBackoffDuration(attempt, policy.InitialInterval, policy.Multiplier, policy.MaxInterval)
			onRetry(attempt, err, nextDelay)
		}

		return err
	}

	return backoff.Retry(operation, b)
}

func policyBackoff(policy Policy) backoff.BackOff {
	if policy.MaxElapsedTime > 0 {
		return ExponentialBackoffWithMaxElapsed(
			policy.InitialInterval,
			policy.MaxInterval,
			policy.MaxElapsedTime,
			policy.Multiplier,
		)
	}
	return ExponentialBackoff(
		policy.InitialInterval,
		policy.MaxInterval,
		policy.Multiplier,
	)
}
