package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Queues            map[string]int // queue name -> concurrency
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	WorkerID          string
	EnableScheduler   bool
	Logger            *slog.Logger

	// StorageRetry applies to Complete, Fail and Heartbeat.
	StorageRetry *RetryConfig
	// DequeueRetry applies to polling.
	DequeueRetry *RetryConfig
}

// defaultQueues is used when no WorkerQueue option is given. It includes
// the queue RetryOnce and RetryBackoff move failed calls to.
func defaultQueues() map[string]int {
	return map[string]int{
		deferred.DefaultQueue: 10,
		core.RetryQueue:       2,
	}
}

// Concurrency sets the concurrency for a queue.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		clamped := security.ClampConcurrency(n)
		for k := range c.Queues {
			c.Queues[k] = clamped
		}
	})
}

// WithScheduler enables the scheduler in the worker.
func WithScheduler(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.EnableScheduler = enabled
	})
}

// WorkerQueue adds a queue to process. Nested options such as Concurrency
// apply to this queue only.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Queues == nil {
			c.Queues = make(map[string]int)
		}
		scoped := WorkerConfig{Queues: map[string]int{name: 10}} // default concurrency
		for _, opt := range opts {
			opt.ApplyWorker(&scoped)
		}
		c.Queues[name] = scoped.Queues[name]
	})
}

// PollInterval sets how often the worker polls storage for due jobs.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// HeartbeatInterval sets how often a running job's lock is extended.
func HeartbeatInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	})
}

// WithWorkerID sets the ID the worker locks jobs under.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithLogger sets the worker's logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithStorageRetry sets the retry configuration for storage writes.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry configuration for polling.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// WithRetryAttempts keeps the default storage retry configuration but
// changes its attempt count.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage operation a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		storage := DefaultRetryConfig()
		storage.MaxAttempts = 1
		dequeue := defaultDequeueRetryConfig()
		dequeue.MaxAttempts = 1
		c.StorageRetry = &storage
		c.DequeueRetry = &dequeue
	})
}
