package core

import (
	"errors"
	"fmt"
	"time"
)

// Rejected input.
var (
	ErrInvalidTypeName   = errors.New("delay: invalid type name (must be alphanumeric, start with letter)")
	ErrTypeNameTooLong   = errors.New("delay: type name too long")
	ErrInvalidMethodName = errors.New("delay: invalid method name")
	ErrInvalidQueueName  = errors.New("delay: invalid queue name")
	ErrQueueNameTooLong  = errors.New("delay: queue name too long")
	ErrPayloadTooLarge   = errors.New("delay: call payload exceeds size limit")
	ErrUniqueKeyTooLong  = errors.New("delay: unique key exceeds maximum length")
)

// Storage answers.
var (
	// ErrJobNotOwned means another worker holds the call's lock, or nobody does.
	ErrJobNotOwned = errors.New("delay: job not owned by this worker")

	// ErrDuplicateJob means a pending or running call already holds the unique key.
	ErrDuplicateJob = errors.New("delay: duplicate job with same unique key")
)

// NoRetryError fails a deferred call for good, whatever its retry policy.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string { return fmt.Sprintf("no retry: %v", e.Err) }

func (e *NoRetryError) Unwrap() error { return e.Err }

// NoRetry wraps err so the worker fails the call without retrying it.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// IsNoRetry reports whether err carries a *NoRetryError.
func IsNoRetry(err error) bool {
	var nr *NoRetryError
	return errors.As(err, &nr)
}

// RetryAfterError overrides the delay before the next attempt. The call's
// retry budget still applies.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string { return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err) }

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter wraps err so the next attempt runs d from now.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}

// RetryDelay returns the delay requested by a *RetryAfterError in err.
func RetryDelay(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.Delay, true
	}
	return 0, false
}
