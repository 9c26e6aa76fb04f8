package context

import (
	"context"

	"github.com/jdziat/simple-delay/pkg/core"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext carries the job a worker is running down to the dispatcher,
// and carries back what the dispatcher did with it. It belongs to the
// goroutine running the job.
type JobContext struct {
	Job      *core.Job
	Storage  core.Storage
	WorkerID string

	// Skipped is the reference whose missing record made the dispatcher
	// skip the call, or "".
	Skipped string
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}

// JobID returns the ID of the job running under ctx, or "".
func JobID(ctx context.Context) string {
	jc := GetJobContext(ctx)
	if jc == nil || jc.Job == nil {
		return ""
	}
	return jc.Job.ID
}

// MarkSkipped records that the call running under ctx was skipped because
// the record behind ref is gone. Outside a job it does nothing.
func MarkSkipped(ctx context.Context, ref string) {
	if jc := GetJobContext(ctx); jc != nil {
		jc.Skipped = ref
	}
}
