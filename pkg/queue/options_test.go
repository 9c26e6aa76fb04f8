package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/simple-delay/pkg/core"
)

func TestNewOptions_Defaults(t *testing.T) {
	opts := NewOptions()

	assert.Empty(t, opts.Queue)
	assert.Equal(t, 0, opts.Priority)
	assert.Equal(t, DefaultRetries, opts.MaxRetries)
	assert.Equal(t, core.RetryDefault, opts.RetryPolicy)
	assert.Nil(t, opts.Delay)
	assert.Nil(t, opts.RunAt)
	assert.Empty(t, opts.UniqueKey)
	assert.Equal(t, DefaultRetries, opts.maxRetries())
}

func TestTo(t *testing.T) {
	opts := NewOptions()
	To("mailers").Apply(opts)

	assert.Equal(t, "mailers", opts.Queue)
}

func TestPriority(t *testing.T) {
	opts := NewOptions()
	Priority(10).Apply(opts)

	assert.Equal(t, 10, opts.Priority)
}

func TestRetries(t *testing.T) {
	opts := NewOptions()
	Retries(5).Apply(opts)

	assert.Equal(t, 5, opts.maxRetries())
}

func TestRetries_Clamped(t *testing.T) {
	opts := NewOptions()
	Retries(1000).Apply(opts) // Should be clamped to 100

	assert.Equal(t, 100, opts.maxRetries())
}

func TestRetry_PolicySetsBudget(t *testing.T) {
	opts := NewOptions()
	Retry(core.RetryOnce).Apply(opts)
	assert.Equal(t, 1, opts.maxRetries())

	opts = NewOptions()
	Retry(core.RetryBackoff).Apply(opts)
	assert.Equal(t, len(core.BackoffSchedule), opts.maxRetries())
}

func TestRetry_ExplicitCountWins(t *testing.T) {
	opts := NewOptions()
	Retries(3).Apply(opts)
	Retry(core.RetryBackoff).Apply(opts)

	assert.Equal(t, core.RetryBackoff, opts.RetryPolicy)
	assert.Equal(t, 3, opts.maxRetries())
}

func TestIn(t *testing.T) {
	opts := NewOptions()
	In(5 * time.Minute).Apply(opts)
	assert.Equal(t, 5*time.Minute, opts.Delay)

	In(30).Apply(opts)
	assert.Equal(t, 30, opts.Delay)
}

func TestAt(t *testing.T) {
	opts := NewOptions()
	runAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	At(runAt).Apply(opts)

	assert.NotNil(t, opts.RunAt)
	assert.Equal(t, runAt, *opts.RunAt)
}

func TestUnique(t *testing.T) {
	opts := NewOptions()
	Unique("user-123-welcome").Apply(opts)

	assert.Equal(t, "user-123-welcome", opts.UniqueKey)
}

func TestMultipleOptions(t *testing.T) {
	opts := NewOptions()

	To("emails").Apply(opts)
	Priority(5).Apply(opts)
	Retries(3).Apply(opts)
	Unique("unique-key").Apply(opts)

	assert.Equal(t, "emails", opts.Queue)
	assert.Equal(t, 5, opts.Priority)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, "unique-key", opts.UniqueKey)
}
