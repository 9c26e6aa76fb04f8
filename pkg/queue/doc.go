// Package queue provides the Queue type for scheduling deferred calls.
//
// This package includes:
//   - Queue: captures method calls and enqueues them as durable jobs
//   - Option: configuration for where, when and how often a call runs
//   - Hook registration for job lifecycle events
//   - Event subscription for monitoring
//   - Recurring calls driven by a schedule.Schedule
//
// Most users should import the root package github.com/jdziat/simple-delay
// which re-exports Queue and all option functions.
package queue
