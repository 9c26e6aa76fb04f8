package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-delay/pkg/core"
	intctx "github.com/jdziat/simple-delay/pkg/internal/context"
	"github.com/jdziat/simple-delay/pkg/queue"
	"github.com/jdziat/simple-delay/pkg/security"
)

var errUnknownJobType = errors.New("delay: unknown job type")

// Worker dequeues deferred calls and runs them through the queue's dispatcher.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		Queues:            nil, // Will be set to default if no queue options provided
		PollInterval:      100 * time.Millisecond,
		HeartbeatInterval: 2 * time.Minute,
		WorkerID:          uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.Queues == nil {
		config.Queues = defaultQueues()
	}

	// Set default retry configs if not specified
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.DequeueRetry == nil {
		dequeueCfg := defaultDequeueRetryConfig()
		config.DequeueRetry = &dequeueCfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// Config returns the resolved worker configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Start begins processing jobs. Blocks until context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	queues := make([]string, 0, len(w.config.Queues))
	for q := range w.config.Queues {
		queues = append(queues, q)
	}

	totalConcurrency := 0
	for _, c := range w.config.Queues {
		totalConcurrency += c
	}

	jobsChan := make(chan *core.Job, totalConcurrency)

	// Start scheduler if enabled
	if w.config.EnableScheduler {
		go w.runScheduler(ctx)
	}

	for i := 0; i < totalConcurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, jobsChan)
	}

	w.logger.Info("worker started", "queues", queues, "concurrency", totalConcurrency)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobsChan)
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			job, err := w.dequeueWithRetry(ctx, queues)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to dequeue after retries", "error", err)
				}
				continue
			}
			if job != nil {
				select {
				case jobsChan <- job:
				case <-ctx.Done():
				}
			}
		}
	}
}

// dequeueWithRetry attempts to dequeue a job with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, queues []string) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		job, dequeueErr = w.queue.Storage().Dequeue(ctx, queues, w.config.WorkerID)
		return dequeueErr
	})
	return job, err
}

func (w *Worker) processLoop(ctx context.Context, jobs <-chan *core.Job) {
	defer w.wg.Done()

	for job := range jobs {
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()

	// Call start hooks
	w.queue.CallStartHooks(ctx, job)

	// Emit start event
	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.queue.RegisterRunningJob(job.ID, cancel)
	defer w.queue.UnregisterRunningJob(job.ID)

	// Create a cancellable context for the heartbeat goroutine
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()

	// Start heartbeat goroutine to extend lock during long-running jobs
	go w.runHeartbeat(heartbeatCtx, job)

	skipped, err := w.execute(jobCtx, job)

	// Stop heartbeat before completing/failing the job
	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, job, err)
		return
	}

	if completeErr := w.completeWithRetry(ctx, job.ID); completeErr != nil {
		w.logger.Error("failed to complete job after retries", "job_id", job.ID, "error", completeErr)
		return
	}
	if skipped != "" {
		w.queue.Emit(&core.CallSkipped{Job: job, Ref: skipped, Timestamp: time.Now()})
	}
	w.queue.CallCompleteHooks(ctx, job)
	w.queue.Emit(&core.JobCompleted{Job: job, Duration: time.Since(startTime), Timestamp: time.Now()})
	w.logger.Debug("job completed",
		"job_id", job.ID,
		"display_name", job.DisplayName,
		"duration", time.Since(startTime),
	)
}

// execute dispatches the job's payload and returns the reference of the
// missing record if the call was skipped. Panics in the invoked method are
// returned as errors.
func (w *Worker) execute(ctx context.Context, job *core.Job) (skipped string, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("deferred call panicked",
				"job_id", job.ID,
				"display_name", job.DisplayName,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if job.Type != core.JobTypeDeferredCall {
		return "", fmt.Errorf("%w: %q", errUnknownJobType, job.Type)
	}

	jc := &intctx.JobContext{
		Job:      job,
		Storage:  w.queue.Storage(),
		WorkerID: w.config.WorkerID,
	}
	err = w.queue.Dispatcher().Dispatch(intctx.WithJobContext(ctx, jc), job.Args)
	return jc.Skipped, err
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, jobID, w.config.WorkerID)
	})
}

// runHeartbeat periodically extends the job lock during execution.
// This prevents long-running jobs from being reclaimed as stale.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.queue.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID)
			})
			if err != nil {
				w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
			} else {
				w.logger.Debug("heartbeat sent", "job_id", job.ID)
			}
		}
	}
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error) {
	errMsg := security.SanitizeErrorMessage(err.Error())

	retry := nextRetry(job, err, time.Now())
	if retry == nil {
		w.failWithRetry(ctx, job.ID, errMsg, nil)
		w.queue.CallFailHooks(ctx, job, err)
		w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
		w.logger.Error("deferred call failed",
			"job_id", job.ID,
			"display_name", job.DisplayName,
			"queue", job.Queue,
			"attempt", job.Attempt,
			"permanent", permanent(err),
			"error", err,
		)
		return
	}

	w.failWithRetry(ctx, job.ID, errMsg, retry)
	w.queue.CallRetryHooks(ctx, job, job.Attempt, err)

	queueName := retry.Queue
	if queueName == "" {
		queueName = job.Queue
	}
	w.queue.Emit(&core.JobRetrying{
		Job:       job,
		Attempt:   job.Attempt,
		Error:     err,
		NextRunAt: retry.At,
		Queue:     queueName,
		Timestamp: time.Now(),
	})
	w.logger.Warn("deferred call failed, retrying",
		"job_id", job.ID,
		"display_name", job.DisplayName,
		"queue", queueName,
		"attempt", job.Attempt,
		"next_run_at", retry.At,
		"error", err,
	)
}

// failWithRetry marks a job as failed with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, jobID string, errMsg string, retry *core.Retry) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Fail(ctx, jobID, w.config.WorkerID, errMsg, retry)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries", "job_id", jobID, "error", err)
	}
}

func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	started := time.Now()
	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for name, sc := range w.queue.GetScheduledCalls() {
				w.runScheduled(ctx, name, sc, lastRun, started, now)
			}
		}
	}
}

// runScheduled enqueues sc when it is due. A call that has never run is
// measured from when the scheduler started.
func (w *Worker) runScheduled(ctx context.Context, name string, sc *queue.ScheduledCall, lastRun map[string]time.Time, started, now time.Time) {
	last, ok := lastRun[name]
	if !ok {
		last = started
	}
	nextRun := sc.Schedule.Next(last)
	if now.Before(nextRun) {
		return
	}
	if _, err := w.queue.EnqueueCall(ctx, sc.Call, sc.Options...); err != nil {
		w.logger.Error("failed to enqueue scheduled call", "name", name, "error", err)
		return
	}
	lastRun[name] = now
}
