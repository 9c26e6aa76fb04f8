// Package delay schedules method calls to run later on a worker.
//
// A call captures a receiver, a method name and arguments. Receivers and
// arguments that live in a data store (GORM models, MongoDB documents) are
// stored as references and reloaded when the call runs; registered types
// are stored by name; everything else is stored by value.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("app.db"), &gorm.Config{})
//	reg := delay.NewRegistry()
//	records := gormref.New(db, reg)
//	records.MustRegister("Invoice", &Invoice{})
//
//	codec, _ := delay.NewCodec(reg, delay.WithKinds(records.Kinds()...))
//	store := delay.NewGormStorage(db)
//	store.Migrate(ctx)
//	q := delay.New(store, delay.NewDispatcher(codec))
//
//	// Later, on any process sharing the database:
//	q.Delay(ctx, invoice, "send_reminder", []any{"billing@example.com"}, nil, delay.In(time.Hour))
//
//	// Start a worker
//	q.NewWorker().Start(ctx)
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/jobctx"
	"github.com/jdziat/simple-delay/pkg/queue"
	"github.com/jdziat/simple-delay/pkg/ref"
	"github.com/jdziat/simple-delay/pkg/schedule"
	"github.com/jdziat/simple-delay/pkg/storage"
	"github.com/jdziat/simple-delay/pkg/tracing"
	"github.com/jdziat/simple-delay/pkg/worker"
)

func init() {
	// Register the worker factory to enable queue.NewWorker()
	queue.WorkerFactory = func(q *queue.Queue, opts ...any) core.Starter {
		workerOpts := make([]worker.WorkerOption, 0, len(opts))
		for _, opt := range opts {
			if wo, ok := opt.(worker.WorkerOption); ok {
				workerOpts = append(workerOpts, wo)
			}
		}
		return worker.NewWorker(q, workerOpts...)
	}
}

type (
	// Job is the stored form of a scheduled call.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// RetryPolicy selects how a failed call is rescheduled.
	RetryPolicy = core.RetryPolicy

	// Storage defines the persistence layer for jobs.
	Storage = core.Storage

	// Event is the interface for all queue events.
	Event = core.Event

	// CallSkipped is emitted when a call's record was deleted before it ran.
	CallSkipped = core.CallSkipped

	JobStarted   = core.JobStarted
	JobCompleted = core.JobCompleted
	JobFailed    = core.JobFailed
	JobRetrying  = core.JobRetrying

	// NoRetryError indicates an error that should not be retried.
	NoRetryError = core.NoRetryError

	// RetryAfterError indicates an error that should be retried after a delay.
	RetryAfterError = core.RetryAfterError

	// Registry maps type names to Go types for CLASS and OBJ references.
	Registry = ref.Registry

	// Codec encodes values into reference strings and decodes them back.
	Codec = ref.Codec

	// CodecOption configures a Codec.
	CodecOption = ref.Option

	// Kind is a store-backed reference variant.
	Kind = ref.Kind

	// Call is a scheduled method call.
	Call = deferred.Call

	// Dispatcher creates and performs calls.
	Dispatcher = deferred.Dispatcher

	// DispatcherOption configures a Dispatcher.
	DispatcherOption = deferred.Option

	// Queue enqueues calls and hosts hooks, events and recurring calls.
	Queue = queue.Queue

	// Option modifies how a call is enqueued.
	Option = queue.Option

	// ScheduledCall holds a recurring call.
	ScheduledCall = queue.ScheduledCall

	// Worker runs enqueued calls.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// Schedule defines when a recurring call runs next.
	Schedule = schedule.Schedule

	GormStorage  = storage.GormStorage
	RedisStorage = storage.RedisStorage
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
)

// Retry policies
const (
	RetryDefault = core.RetryDefault
	RetryOnce    = core.RetryOnce
	RetryBackoff = core.RetryBackoff
)

// Queue names
const (
	DefaultQueue = deferred.DefaultQueue
	RetryQueue   = core.RetryQueue
)

// Error variables
var (
	ErrResolution       = ref.ErrResolution
	ErrRecordNotFound   = ref.ErrRecordNotFound
	ErrDecode           = ref.ErrDecode
	ErrMethodNotFound   = deferred.ErrMethodNotFound
	ErrInvalidDelay     = deferred.ErrInvalidDelay
	ErrArgument         = deferred.ErrArgument
	ErrInvalidQueueName = core.ErrInvalidQueueName
	ErrPayloadTooLarge  = core.ErrPayloadTooLarge
	ErrJobNotOwned      = core.ErrJobNotOwned
	ErrDuplicateJob     = core.ErrDuplicateJob
)

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return ref.NewRegistry()
}

// NewCodec builds a Codec over reg.
func NewCodec(reg *Registry, opts ...CodecOption) (*Codec, error) {
	return ref.NewCodec(reg, opts...)
}

// WithKinds supplies store-backed kinds in encode priority order.
func WithKinds(kinds ...Kind) CodecOption {
	return ref.WithKinds(kinds...)
}

// WithStrictStrings makes the codec reject plain strings that look like
// references.
func WithStrictStrings() CodecOption {
	return ref.WithStrictStrings()
}

// NewDispatcher creates a Dispatcher over codec.
func NewDispatcher(codec *Codec, opts ...DispatcherOption) *Dispatcher {
	return deferred.NewDispatcher(codec, opts...)
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return deferred.WithLogger(l)
}

// WithTracing wraps every performed call in an OpenTelemetry span from the
// global tracer provider.
func WithTracing() DispatcherOption {
	return deferred.WithTracer(tracing.New(nil))
}

// New creates a Queue storing calls in s and creating them with d.
func New(s Storage, d *Dispatcher) *Queue {
	return queue.New(s, d)
}

// NewGormStorage creates a GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewRedisStorage creates a Redis-backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...storage.RedisOption) *RedisStorage {
	return storage.NewRedisStorage(client, opts...)
}

// NewWorker creates a worker for q.
func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	return worker.NewWorker(q, opts...)
}

// Perform runs a call payload in the current process. payload may be a
// *Call, a JSON document or a decoded map or list.
func Perform(ctx context.Context, d *Dispatcher, payload any) error {
	return d.Dispatch(ctx, payload)
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// Call option functions

// To sets the queue the call runs on.
func To(name string) Option {
	return queue.To(name)
}

// In delays the call by a duration or a whole number of seconds.
func In(delay any) Option {
	return queue.In(delay)
}

// At runs the call at a specific time.
func At(t time.Time) Option {
	return queue.At(t)
}

// Priority sets the call priority (higher = runs first).
func Priority(p int) Option {
	return queue.Priority(p)
}

// Retries sets the maximum retry count.
func Retries(n int) Option {
	return queue.Retries(n)
}

// Retry selects the retry policy.
func Retry(policy RetryPolicy) Option {
	return queue.Retry(policy)
}

// Unique ensures only one pending or running call holds key.
func Unique(key string) Option {
	return queue.Unique(key)
}

// Worker option functions

// Concurrency sets the concurrency for a queue.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// WithScheduler enables recurring calls in the worker.
func WithScheduler(enabled bool) WorkerOption {
	return worker.WithScheduler(enabled)
}

// WorkerQueue adds a queue to process with optional concurrency.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return worker.WorkerQueue(name, opts...)
}

// PollInterval sets how often the worker polls storage for due calls.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// JobFromContext returns the job running the current call, or nil outside a worker.
func JobFromContext(ctx context.Context) *Job {
	return jobctx.JobFromContext(ctx)
}

// JobIDFromContext returns the current job ID, or "" outside a worker.
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}

// AttemptFromContext returns the 1-based attempt of the running call.
func AttemptFromContext(ctx context.Context) int {
	return jobctx.AttemptFromContext(ctx)
}
