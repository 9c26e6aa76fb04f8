package worker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/ref"
)

func TestPermanent_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errFlaky, false},
		{"no retry", core.NoRetry(errFlaky), true},
		{"wrapped no retry", fmt.Errorf("send: %w", core.NoRetry(errFlaky)), true},
		{"unresolvable type", &ref.ResolutionError{Tag: ref.TagClass, Name: "Ghost"}, true},
		{"corrupt payload", &ref.DecodeError{Ref: "payload", Err: errFlaky}, true},
		{"missing method", &deferred.MethodNotFoundError{Receiver: "Reporter", Method: "vanish"}, true},
		{"bad argument", &deferred.ArgumentError{Method: "pair", Param: "arity", Err: errFlaky}, true},
		{"malformed key", &ref.DecodeError{Ref: "AR:User:abc", Err: ref.ErrMalformedKey}, true},
		{"lookup failure", &ref.LookupError{Tag: ref.TagAR, TypeName: "User", Keys: []string{"1"}, Err: errFlaky}, false},
		{"retry after", core.RetryAfter(time.Second, errFlaky), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, permanent(tt.err))
		})
	}
}

func TestNextRetry_Default(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &core.Job{Attempt: 1, MaxRetries: 2}

	retry := nextRetry(job, errFlaky, now)
	require.NotNil(t, retry)
	assert.Empty(t, retry.Queue)
	assert.Equal(t, now.Add(2*time.Second), retry.At)

	job.Attempt = 2
	retry = nextRetry(job, errFlaky, now)
	require.NotNil(t, retry)
	assert.Equal(t, now.Add(4*time.Second), retry.At)

	job.Attempt = 3
	assert.Nil(t, nextRetry(job, errFlaky, now), "retries exhausted")
}

func TestNextRetry_NoRetriesConfigured(t *testing.T) {
	job := &core.Job{Attempt: 1, MaxRetries: 0}

	assert.Nil(t, nextRetry(job, errFlaky, time.Now()))
}

func TestNextRetry_Once(t *testing.T) {
	now := time.Now()
	job := &core.Job{Attempt: 1, MaxRetries: 1, RetryPolicy: core.RetryOnce}

	retry := nextRetry(job, errFlaky, now)
	require.NotNil(t, retry)
	assert.Equal(t, core.RetryQueue, retry.Queue)
	assert.Equal(t, now, retry.At)

	job.Attempt = 2
	assert.Nil(t, nextRetry(job, errFlaky, now))
}

func TestNextRetry_Backoff(t *testing.T) {
	now := time.Now()
	job := &core.Job{MaxRetries: len(core.BackoffSchedule), RetryPolicy: core.RetryBackoff}

	for i, base := range core.BackoffSchedule {
		job.Attempt = i + 1
		retry := nextRetry(job, errFlaky, now)
		require.NotNil(t, retry, "attempt %d", job.Attempt)
		assert.Equal(t, core.RetryQueue, retry.Queue)

		delay := retry.At.Sub(now)
		assert.GreaterOrEqual(t, delay, time.Duration(float64(base)*backoffJitterMin))
		assert.LessOrEqual(t, delay, time.Duration(float64(base)*backoffJitterMax))
	}

	job.Attempt = len(core.BackoffSchedule) + 1
	assert.Nil(t, nextRetry(job, errFlaky, now))
}

func TestNextRetry_RetryAfterKeepsPolicyQueue(t *testing.T) {
	now := time.Now()

	job := &core.Job{Attempt: 1, MaxRetries: 3}
	retry := nextRetry(job, core.RetryAfter(time.Minute, errFlaky), now)
	require.NotNil(t, retry)
	assert.Equal(t, now.Add(time.Minute), retry.At)
	assert.Empty(t, retry.Queue)

	job.RetryPolicy = core.RetryBackoff
	retry = nextRetry(job, core.RetryAfter(time.Minute, errFlaky), now)
	require.NotNil(t, retry)
	assert.Equal(t, now.Add(time.Minute), retry.At)
	assert.Equal(t, core.RetryQueue, retry.Queue)
}

func TestNextRetry_PermanentNeverRetries(t *testing.T) {
	job := &core.Job{Attempt: 1, MaxRetries: 10, RetryPolicy: core.RetryBackoff}

	assert.Nil(t, nextRetry(job, core.NoRetry(errFlaky), time.Now()))
	assert.Nil(t, nextRetry(job, &deferred.MethodNotFoundError{Receiver: "Reporter", Method: "vanish"}, time.Now()))
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, exponentialBackoff(0))
	assert.Equal(t, time.Second, exponentialBackoff(-1))
	assert.Equal(t, 2*time.Second, exponentialBackoff(1))
	assert.Equal(t, 32*time.Second, exponentialBackoff(5))
	assert.Equal(t, time.Minute, exponentialBackoff(6))
	assert.Equal(t, time.Minute, exponentialBackoff(64))
}

func TestBackoffDelay_Bounds(t *testing.T) {
	assert.Equal(t, 21*time.Second, backoffDelay(1, 0))
	assert.Equal(t, 30*time.Second, backoffDelay(1, 0.5))
	assert.Equal(t, 84*time.Second, backoffDelay(2, 0))
	assert.Equal(t, 120*time.Hour, backoffDelay(10, 0.5))
	assert.Equal(t, 120*time.Hour, backoffDelay(50, 0.5), "clamped to the last entry")
	assert.Equal(t, 21*time.Second, backoffDelay(0, 0), "clamped to the first entry")
}
