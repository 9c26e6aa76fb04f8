// Package core provides the domain models and interfaces for the delay package.
package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// JobTypeDeferredCall is the job type carrying a deferred method call payload.
const JobTypeDeferredCall = "deferred.call"

// RetryPolicy selects how a failed job is rescheduled.
type RetryPolicy string

const (
	// RetryDefault retries up to MaxRetries times with exponential backoff on the job's own queue.
	RetryDefault RetryPolicy = ""
	// RetryOnce retries a single time on the retry queue.
	RetryOnce RetryPolicy = "once"
	// RetryBackoff walks the long backoff schedule on the retry queue.
	RetryBackoff RetryPolicy = "backoff"
)

// RetryQueue is the queue failed jobs move to under RetryOnce and RetryBackoff.
const RetryQueue = "retries"

// BackoffSchedule holds the base delay before each RetryBackoff retry.
// Workers scale every step by a random factor in [0.7, 1.3].
var BackoffSchedule = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
	120 * time.Hour,
}

// Retries returns the retry budget policy p grants when no explicit
// count is given.
func (p RetryPolicy) Retries(fallback int) int {
	switch p {
	case RetryOnce:
		return 1
	case RetryBackoff:
		return len(BackoffSchedule)
	}
	return fallback
}

// Job represents a unit of work to be processed.
type Job struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	Type            string      `gorm:"index;size:255;not null" json:"type"`
	Args            []byte      `gorm:"type:bytes" json:"args"`
	Queue           string      `gorm:"index;size:255;default:'default'" json:"queue"`
	Priority        int         `gorm:"index;default:0" json:"priority"`
	Status          JobStatus   `gorm:"index;size:20;default:'pending'" json:"status"`
	Attempt         int         `gorm:"default:0" json:"attempt"`
	MaxRetries      int         `gorm:"default:0" json:"max_retries"`
	RetryPolicy     RetryPolicy `gorm:"size:20" json:"retry_policy,omitempty"`
	DisplayName     string      `gorm:"size:512" json:"display_name,omitempty"` // Label for logs and traces, never used to run the job
	LastError       string      `gorm:"type:text" json:"last_error,omitempty"`
	RunAt           *time.Time  `gorm:"index" json:"run_at,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	LockedBy        string      `gorm:"size:255" json:"locked_by,omitempty"`
	LockedUntil     *time.Time  `gorm:"index" json:"locked_until,omitempty"`
	LastHeartbeatAt *time.Time  `json:"last_heartbeat_at,omitempty"`
	UniqueKey       string      `gorm:"index;size:255" json:"unique_key,omitempty"`
}

// TableName pins the table name so renaming the Go type never moves data.
func (Job) TableName() string {
	return "delayed_jobs"
}
