package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/simple-delay/pkg/core"
)

// RetryConfig controls how a worker retries its own storage calls: claiming
// calls, finishing them and heartbeats. It has nothing to do with retrying
// a failed deferred call, which follows the call's RetryPolicy.
type RetryConfig struct {
	// MaxAttempts counts the first try. Values below 1 mean a single try.
	MaxAttempts int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// JitterFraction spreads each pause by up to ±fraction of itself.
	JitterFraction float64
}

// DefaultRetryConfig is used for Complete, Fail and Heartbeat.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// defaultDequeueRetryConfig gives up sooner but pauses longer, since the
// poll loop tries again on its own.
func defaultDequeueRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// pause returns the wait before try n+1, where n counts from 1.
func (c RetryConfig) pause(n int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			d = float64(c.MaxBackoff)
			break
		}
	}
	if c.JitterFraction > 0 {
		if j := d + d*c.JitterFraction*(rand.Float64()*2-1); j > 0 {
			d = j
		}
	}
	return time.Duration(d)
}

// retryWithBackoff runs op until it succeeds, fails with an error that
// retrying cannot fix, or runs out of attempts. The last error is returned.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func() error) error {
	for n := 1; ; n++ {
		err := op()
		if err == nil || !transient(err) || n >= cfg.MaxAttempts {
			return err
		}

		t := time.NewTimer(cfg.pause(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// transient reports whether a storage error may go away on its own.
// Storage answers about ownership or uniqueness are final.
func transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrJobNotOwned), errors.Is(err, core.ErrDuplicateJob):
		return false
	}
	return true
}
