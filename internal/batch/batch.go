// Package batch models the harness's contract with a batch queueing system.
// Only the job-id and dependency surface is consumed; the scheduler itself is
// opaque and asynchronous.
package batch

import "context"

// JobID is an opaque handle assigned by the batch system.
type JobID string

// Status is the batch system's view of a job.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusRunning
	StatusSucceeded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusUnknown:   "unknown",
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
}

func (s Status) String() string { return statusNames[s] }

// Terminal reports whether the job can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one unit of work handed to the queue.
type Job struct {
	Name    string
	Script  string
	WorkDir string

	MailUser  string
	MailTypes []string
	ExtraArgs string
}

// Client is the dependency-tracking service contract. DependsOn, when
// non-empty, orders the new job after the prerequisite; with allowFailure set
// the job runs regardless of the prerequisite's outcome, otherwise only after
// it succeeded.
type Client interface {
	Enqueue(ctx context.Context, job Job, dependsOn JobID, allowFailure bool) (JobID, error)
	Status(ctx context.Context, id JobID) (Status, error)
}
