// Package jobctx gives deferred methods access to the job running them.
//
// A method whose first parameter is a context.Context receives the
// worker's job context, so it can read the job it runs under:
//
//	func (u *User) SendWelcome(ctx context.Context) error {
//	    slog.Info("sending welcome", "job_id", jobctx.JobIDFromContext(ctx))
//	    ...
//	}
package jobctx

import (
	"context"

	"github.com/jdziat/simple-delay/pkg/core"
	intctx "github.com/jdziat/simple-delay/pkg/internal/context"
)

// JobFromContext returns the current Job from context, or nil outside a worker.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID from context, or empty string outside a worker.
func JobIDFromContext(ctx context.Context) string {
	return intctx.JobID(ctx)
}

// AttemptFromContext returns how many times the current job has been
// attempted, counting the running attempt. It is 0 outside a worker.
func AttemptFromContext(ctx context.Context) int {
	job := JobFromContext(ctx)
	if job == nil {
		return 0
	}
	return job.Attempt
}

// QueueFromContext returns the queue the current job was claimed from.
func QueueFromContext(ctx context.Context) string {
	if job := JobFromContext(ctx); job != nil {
		return job.Queue
	}
	return ""
}

// DisplayNameFromContext returns the label of the running call, such as
// "Invoice#send_reminder".
func DisplayNameFromContext(ctx context.Context) string {
	if job := JobFromContext(ctx); job != nil {
		return job.DisplayName
	}
	return ""
}

// WorkerIDFromContext returns the ID of the worker running the current job.
func WorkerIDFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.WorkerID
}
