// Package queue provides the Queue orchestrator for deferred calls.
package queue

import (
	"time"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/security"
)

// Options holds configuration for scheduling a call.
type Options struct {
	Queue       string // empty keeps the call's own queue
	Priority    int
	MaxRetries  int
	RetryPolicy core.RetryPolicy
	Delay       any // passed to deferred.Create; see In
	RunAt       *time.Time
	UniqueKey   string

	retriesSet bool
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Priority:   0,
		MaxRetries: DefaultRetries,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// To sets the queue the call runs on. Calls without one use "default".
func To(name string) Option {
	return optionFunc(func(o *Options) {
		o.Queue = name
	})
}

// In delays the call. delay is an integer number of seconds or a
// time.Duration of whole seconds; anything else fails when the call is
// created.
func In(delay any) Option {
	return optionFunc(func(o *Options) {
		o.Delay = delay
	})
}

// At schedules the call to run at a specific time. It overrides In.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// Priority sets the job priority (higher = runs first).
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// Retries sets the maximum retry count.
// Values are clamped to [0, MaxRetries] (100).
func Retries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxRetries = security.ClampRetries(n)
		o.retriesSet = true
	})
}

// Retry selects the retry policy. RetryOnce and RetryBackoff also set the
// retry count unless Retries is given.
func Retry(policy core.RetryPolicy) Option {
	return optionFunc(func(o *Options) {
		o.RetryPolicy = policy
	})
}

// Unique ensures only one pending call with this key exists.
func Unique(key string) Option {
	return optionFunc(func(o *Options) {
		o.UniqueKey = key
	})
}

// maxRetries resolves the retry budget after all options are applied.
func (o *Options) maxRetries() int {
	if o.retriesSet {
		return o.MaxRetries
	}
	return security.ClampRetries(o.RetryPolicy.Retries(o.MaxRetries))
}

// DefaultRetries is the retry budget of calls scheduled without Retries or Retry.
var DefaultRetries = 2
