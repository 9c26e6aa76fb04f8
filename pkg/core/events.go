package core

import "time"

// Event is anything a Queue publishes to its Events subscribers.
type Event interface {
	eventMarker()
}

// CallSkipped is emitted when a call completes without running because a
// record it references was deleted after scheduling. JobCompleted follows.
type CallSkipped struct {
	Job       *Job
	Ref       string // reference of the missing record
	Timestamp time.Time
}

func (*CallSkipped) eventMarker() {}

// JobStarted is emitted when a worker begins performing a call.
type JobStarted struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted once the method returns without error, or the
// call was skipped.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a call fails and will not run again.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a failed call is rescheduled. Queue is where
// the next attempt runs.
type JobRetrying struct {
	Job       *Job
	Attempt   int
	Error     error
	NextRunAt time.Time
	Queue     string
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}
