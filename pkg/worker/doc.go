// Package worker provides the Worker that runs deferred calls.
//
// This package includes:
//   - Worker: Dequeues jobs and dispatches their calls
//   - WorkerOption: Configuration options for workers
//   - Retry policies for failed calls
//   - Scheduler for recurring calls
//
// Most users should import the root package github.com/jdziat/simple-delay
// which provides access to worker configuration through queue.NewWorker().
package worker
