package core

import (
	"context"
	"time"
)

// Starter runs a worker until its context ends.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage persists deferred calls between the process that schedules them
// and the workers that perform them.
//
// Implementations must hand each pending call to at most one worker at a
// time, and must only let the worker holding a call's lock finish it.
type Storage interface {
	// Migrate prepares tables, indexes or keyspace.
	Migrate(ctx context.Context) error

	// Enqueue stores a pending call. It assigns an ID when job.ID is empty.
	Enqueue(ctx context.Context, job *Job) error

	// EnqueueUnique is Enqueue that fails with ErrDuplicateJob while another
	// pending or running call holds uniqueKey.
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error

	// Dequeue claims the next due call on any of queues, highest priority
	// first and oldest first within a priority. It returns nil, nil when
	// nothing is due.
	Dequeue(ctx context.Context, queues []string, workerID string) (*Job, error)

	// Complete and Fail finish a claimed call. Both return ErrJobNotOwned
	// when workerID no longer holds the lock. A non-nil retry reschedules
	// the call instead of failing it for good.
	Complete(ctx context.Context, jobID string, workerID string) error
	Fail(ctx context.Context, jobID string, workerID string, errMsg string, retry *Retry) error

	// Heartbeat extends the lock on a running call.
	Heartbeat(ctx context.Context, jobID string, workerID string) error

	// ReleaseStaleLocks returns running calls whose lock expired more than
	// staleDuration ago to pending.
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)

	// GetJob returns nil, nil for unknown IDs.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// GetJobsByStatus lists calls oldest first. A limit of zero or less
	// returns all of them.
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
}

// Retry describes when and where a failed call runs again.
// An empty Queue keeps the call on its current queue.
type Retry struct {
	At    time.Time
	Queue string
}
