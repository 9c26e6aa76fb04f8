package worker

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/ref"
)

// Jitter bounds applied to each RetryBackoff delay.
const (
	backoffJitterMin = 0.7
	backoffJitterMax = 1.3
)

// permanent reports failures that another attempt cannot fix: the call
// names a type or method this process does not know, its arguments do not
// fit, or the method asked not to be retried.
func permanent(err error) bool {
	return core.IsNoRetry(err) ||
		ref.IsPermanent(err) ||
		errors.Is(err, deferred.ErrMethodNotFound) ||
		errors.Is(err, deferred.ErrArgument) ||
		errors.Is(err, errUnknownJobType)
}

// nextRetry decides when and where job runs again after err. It returns
// nil once the job has failed for good. job.Attempt counts the attempt
// that just failed.
func nextRetry(job *core.Job, err error, now time.Time) *core.Retry {
	if permanent(err) || job.Attempt > job.MaxRetries {
		return nil
	}

	queue := ""
	if job.RetryPolicy == core.RetryOnce || job.RetryPolicy == core.RetryBackoff {
		queue = core.RetryQueue
	}

	if d, ok := core.RetryDelay(err); ok {
		return &core.Retry{At: now.Add(d), Queue: queue}
	}

	switch job.RetryPolicy {
	case core.RetryOnce:
		return &core.Retry{At: now, Queue: queue}
	case core.RetryBackoff:
		return &core.Retry{At: now.Add(backoffDelay(job.Attempt, rand.Float64())), Queue: queue}
	default:
		return &core.Retry{At: now.Add(exponentialBackoff(job.Attempt))}
	}
}

// exponentialBackoff doubles from one second and caps at a minute.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		return time.Minute
	}
	backoff := time.Second * (1 << attempt)
	if backoff > time.Minute {
		backoff = time.Minute
	}
	return backoff
}

// backoffDelay scales the schedule entry for attempt by a factor in
// [0.7, 1.3] chosen by r in [0, 1).
func backoffDelay(attempt int, r float64) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(core.BackoffSchedule) {
		i = len(core.BackoffSchedule) - 1
	}
	factor := backoffJitterMin + r*(backoffJitterMax-backoffJitterMin)
	return time.Duration(math.Round(float64(core.BackoffSchedule[i]) * factor))
}
