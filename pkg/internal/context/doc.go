// Package context threads the job a worker is running through the
// dispatcher and into the deferred method, and lets the dispatcher report
// back a call it skipped.
package context
