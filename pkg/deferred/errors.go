package deferred

import (
	"errors"
	"fmt"
)

var (
	// ErrMethodNotFound is returned when the receiver does not expose the method.
	ErrMethodNotFound = errors.New("deferred: method not found")

	// ErrInvalidDelay is returned when a delay is not a non-negative whole number of seconds.
	ErrInvalidDelay = errors.New("deferred: invalid delay")

	// ErrArgument is returned when decoded arguments do not fit the method signature.
	ErrArgument = errors.New("deferred: argument mismatch")

	// ErrInvalidPayload is wrapped by the decode error returned for malformed queue payloads.
	ErrInvalidPayload = errors.New("deferred: invalid payload")
)

// MethodNotFoundError reports a method the receiver does not expose.
type MethodNotFoundError struct {
	Receiver string // receiver type
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("deferred: %s has no method %q", e.Receiver, e.Method)
}

func (e *MethodNotFoundError) Is(target error) bool { return target == ErrMethodNotFound }

// InvalidDelayError reports a delay Create cannot turn into whole seconds.
type InvalidDelayError struct {
	Delay any
}

func (e *InvalidDelayError) Error() string {
	return fmt.Sprintf("deferred: delay %v (%T) is not a non-negative whole number of seconds", e.Delay, e.Delay)
}

func (e *InvalidDelayError) Is(target error) bool { return target == ErrInvalidDelay }

// ArgumentError reports a decoded argument that cannot be passed to the method.
type ArgumentError struct {
	Method string
	Param  string // "#2", "kwargs" or "arity"
	Err    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("deferred: %s argument %s: %v", e.Method, e.Param, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }
