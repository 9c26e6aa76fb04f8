package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/schedule"
	"github.com/jdziat/simple-delay/pkg/security"
)

// Queue captures method calls and stores them as jobs for workers to run.
type Queue struct {
	storage        core.Storage
	dispatcher     *deferred.Dispatcher
	scheduledCalls map[string]*ScheduledCall
	mu             sync.RWMutex

	// Hooks
	onStart    []func(context.Context, *core.Job)
	onComplete []func(context.Context, *core.Job)
	onFail     []func(context.Context, *core.Job, error)
	onRetry    []func(context.Context, *core.Job, int, error)

	// Event stream
	eventSubs []chan core.Event

	// Running job cancellation registry (used by workers to register cancel funcs)
	runningJobs   map[string]context.CancelFunc
	runningJobsMu sync.Mutex
}

// ScheduledCall holds configuration for a recurring call.
type ScheduledCall struct {
	Name     string
	Schedule schedule.Schedule
	Call     *deferred.Call
	Options  []Option
}

// New creates a new Queue over the given storage backend. Calls are
// created and later run with d.
func New(s core.Storage, d *deferred.Dispatcher) *Queue {
	return &Queue{
		storage:     s,
		dispatcher:  d,
		runningJobs: make(map[string]context.CancelFunc),
	}
}

// Delay captures a call of method on target and enqueues it. It returns
// the captured call and the job ID.
func (q *Queue) Delay(ctx context.Context, target any, method string, args []any, kwargs map[string]any, opts ...Option) (*deferred.Call, string, error) {
	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	call, err := q.dispatcher.Create(target, method, args, kwargs, options.Queue, options.Delay)
	if err != nil {
		return nil, "", err
	}

	id, err := q.enqueue(ctx, call, options)
	if err != nil {
		return nil, "", err
	}
	return call, id, nil
}

// EnqueueCall enqueues an already captured call. To overrides the call's
// queue; the call's own delay applies unless At is given.
func (q *Queue) EnqueueCall(ctx context.Context, call *deferred.Call, opts ...Option) (string, error) {
	if call == nil {
		return "", fmt.Errorf("delay: nil call")
	}
	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}
	return q.enqueue(ctx, call, options)
}

func (q *Queue) enqueue(ctx context.Context, call *deferred.Call, options *Options) (string, error) {
	queueName := options.Queue
	if queueName == "" {
		queueName = call.Queue
	}
	if queueName == "" {
		queueName = deferred.DefaultQueue
	}

	// Validate queue name
	if err := security.ValidateQueueName(queueName); err != nil {
		return "", err
	}

	stored := *call
	stored.Queue = queueName
	payload, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("delay: failed to marshal call: %w", err)
	}

	if err := security.CheckPayloadSize(payload); err != nil {
		return "", err
	}

	job := &core.Job{
		ID:          uuid.New().String(),
		Type:        core.JobTypeDeferredCall,
		Args:        payload,
		Queue:       queueName,
		Priority:    options.Priority,
		MaxRetries:  options.maxRetries(),
		RetryPolicy: options.RetryPolicy,
		DisplayName: q.DisplayName(call),
		Status:      core.StatusPending,
	}

	if call.RunIn > 0 {
		runAt := time.Now().Add(call.Delay())
		job.RunAt = &runAt
	}
	if options.RunAt != nil {
		job.RunAt = options.RunAt
	}

	// Use unique enqueue if a unique key is specified
	if options.UniqueKey != "" {
		// Validate unique key length to prevent database errors
		if err := security.ValidateUniqueKey(options.UniqueKey); err != nil {
			return "", err
		}
		if err := q.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return "", err
			}
			return "", fmt.Errorf("delay: failed to enqueue: %w", err)
		}
		return job.ID, nil
	}

	if err := q.storage.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("delay: failed to enqueue: %w", err)
	}

	return job.ID, nil
}

// DisplayName labels call without decoding any of its references.
func (q *Queue) DisplayName(call *deferred.Call) string {
	return q.dispatcher.Codec().DisplayName(call.Object, call.Method)
}

// Schedule registers a recurring call. Workers started with a scheduler
// enqueue call each time sched comes due.
func (q *Queue) Schedule(name string, sched schedule.Schedule, call *deferred.Call, opts ...Option) {
	q.mu.Lock()
	if q.scheduledCalls == nil {
		q.scheduledCalls = make(map[string]*ScheduledCall)
	}
	q.scheduledCalls[name] = &ScheduledCall{
		Name:     name,
		Schedule: sched,
		Call:     call,
		Options:  opts,
	}
	q.mu.Unlock()
}

// GetScheduledCalls returns a copy of the scheduled calls (for the worker scheduler).
func (q *Queue) GetScheduledCalls() map[string]*ScheduledCall {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[string]*ScheduledCall, len(q.scheduledCalls))
	for k, v := range q.scheduledCalls {
		out[k] = v
	}
	return out
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// Dispatcher returns the dispatcher calls are created and run with.
func (q *Queue) Dispatcher() *deferred.Dispatcher {
	return q.dispatcher
}

// OnJobStart registers a callback for when a job starts.
func (q *Queue) OnJobStart(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails permanently.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnRetry registers a callback for when a job is retried.
func (q *Queue) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed, so callers must stop reading before calling Unsubscribe.
// After Unsubscribe returns, no further events will be sent to the channel.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	// Make a copy of the slice to avoid race conditions
	// if Events() is called while we're iterating
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (q *Queue) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, attempt, err)
	}
}

// RegisterRunningJob records the cancel func of a job a worker is running.
func (q *Queue) RegisterRunningJob(jobID string, cancel context.CancelFunc) {
	q.runningJobsMu.Lock()
	q.runningJobs[jobID] = cancel
	q.runningJobsMu.Unlock()
}

// UnregisterRunningJob forgets a finished job.
func (q *Queue) UnregisterRunningJob(jobID string) {
	q.runningJobsMu.Lock()
	delete(q.runningJobs, jobID)
	q.runningJobsMu.Unlock()
}

// CancelRunningJob cancels the context of a call running in this process.
// It reports false when no local worker is running the job.
func (q *Queue) CancelRunningJob(jobID string) bool {
	q.runningJobsMu.Lock()
	cancel, ok := q.runningJobs[jobID]
	q.runningJobsMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// WorkerFactory is set by the root package to create workers.
// This avoids import cycles between queue and worker packages.
var WorkerFactory func(q *Queue, opts ...any) core.Starter

// NewWorker creates a new worker for this queue.
// Options should be worker.WorkerOption values.
func (q *Queue) NewWorker(opts ...any) core.Starter {
	if WorkerFactory == nil {
		panic("delay: WorkerFactory not initialized - import github.com/jdziat/simple-delay to initialize")
	}
	return WorkerFactory(q, opts...)
}
