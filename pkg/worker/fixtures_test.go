package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/deferred"
	"github.com/jdziat/simple-delay/pkg/jobctx"
	"github.com/jdziat/simple-delay/pkg/queue"
	"github.com/jdziat/simple-delay/pkg/ref"
)

type failure struct {
	jobID string
	msg   string
	retry *core.Retry
}

// memStorage is an in-memory core.Storage that hands out pending jobs in
// enqueue order and records how each one finished.
type memStorage struct {
	mu        sync.Mutex
	pending   []*core.Job
	jobs      map[string]*core.Job
	completed []string
	failures  []failure
	failFirst int // Complete/Fail return errors this many times
}

func newMemStorage() *memStorage {
	return &memStorage{jobs: make(map[string]*core.Job)}
}

func (m *memStorage) Migrate(ctx context.Context) error { return nil }

func (m *memStorage) Enqueue(ctx context.Context, job *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.pending = append(m.pending, job)
	return nil
}

func (m *memStorage) EnqueueUnique(ctx context.Context, job *core.Job, uniqueKey string) error {
	return m.Enqueue(ctx, job)
}

func (m *memStorage) Dequeue(ctx context.Context, queues []string, workerID string) (*core.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, job := range m.pending {
		for _, q := range queues {
			if job.Queue == q {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				job.Attempt++
				job.Status = core.StatusRunning
				job.LockedBy = workerID
				return job, nil
			}
		}
	}
	return nil, nil
}

func (m *memStorage) Complete(ctx context.Context, jobID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFirst > 0 {
		m.failFirst--
		return errors.New("connection reset")
	}
	m.completed = append(m.completed, jobID)
	return nil
}

func (m *memStorage) Fail(ctx context.Context, jobID, workerID, errMsg string, retry *core.Retry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFirst > 0 {
		m.failFirst--
		return errors.New("connection reset")
	}
	m.failures = append(m.failures, failure{jobID: jobID, msg: errMsg, retry: retry})
	return nil
}

func (m *memStorage) Heartbeat(ctx context.Context, jobID, workerID string) error { return nil }

func (m *memStorage) ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error) {
	return 0, nil
}

func (m *memStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID], nil
}

func (m *memStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	return nil, nil
}

func (m *memStorage) snapshot() ([]string, []failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.completed...), append([]failure(nil), m.failures...)
}

// Reporter is the class the tests defer calls on.
type Reporter struct{}

var (
	reporterClass = reflect.TypeOf(Reporter{})
	reported      = make(chan string, 16)
	errFlaky      = errors.New("upstream unavailable")
	reportedMu    sync.Mutex
	seenJobIDs    []string
)

func (Reporter) Report(ctx context.Context, name string) error {
	reportedMu.Lock()
	seenJobIDs = append(seenJobIDs, jobctx.JobIDFromContext(ctx))
	reportedMu.Unlock()
	reported <- name
	return nil
}

func (Reporter) Flaky() error { return errFlaky }

func (Reporter) Wait(after time.Duration) error { return core.RetryAfter(after, errFlaky) }

func (Reporter) Refuse() error { return core.NoRetry(errFlaky) }

func (Reporter) Explode() { panic("kaboom") }

func (Reporter) Pair(a, b int) error { return nil }

var errGone = errors.New("record deleted")

// goneKind owns "MEM" references keyed by integers whose records have all
// been deleted.
type goneKind struct{}

func (goneKind) Tag() ref.Tag                            { return "MEM" }
func (goneKind) Composite() bool                         { return false }
func (goneKind) Locate(v any) (ref.Locator, bool, error) { return ref.Locator{}, false, nil }
func (goneKind) IsNotFound(err error) bool               { return errors.Is(err, errGone) }

func (goneKind) Lookup(ctx context.Context, loc ref.Locator) (any, error) {
	if _, err := strconv.Atoi(loc.Keys[0]); err != nil {
		return nil, fmt.Errorf("%w: %w", ref.ErrMalformedKey, err)
	}
	return nil, errGone
}

func newTestQueue(t *testing.T) (*queue.Queue, *memStorage) {
	t.Helper()
	reg := ref.NewRegistry()
	reg.MustRegister("Reporter", Reporter{})
	codec, err := ref.NewCodec(reg, ref.WithKinds(goneKind{}))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStorage()
	return queue.New(store, deferred.NewDispatcher(codec, deferred.WithLogger(logger))), store
}

func newTestWorker(t *testing.T, q *queue.Queue, opts ...WorkerOption) *Worker {
	t.Helper()
	fast := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	opts = append([]WorkerOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStorageRetry(fast),
		WithDequeueRetry(fast),
		PollInterval(5 * time.Millisecond),
	}, opts...)
	return NewWorker(q, opts...)
}

// dequeue enqueues a call on Reporter and claims it like a worker would.
func dequeue(t *testing.T, q *queue.Queue, store *memStorage, method string, args []any, opts ...queue.Option) *core.Job {
	t.Helper()
	_, id, err := q.Delay(context.Background(), reporterClass, method, args, nil, opts...)
	require.NoError(t, err)
	job, err := store.Dequeue(context.Background(), []string{"default", core.RetryQueue}, "test-worker")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, id, job.ID)
	return job
}
