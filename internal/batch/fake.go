package batch

import (
	"context"
	"fmt"
	"sync"
)

// Enqueued records one submission accepted by the fake.
type Enqueued struct {
	ID           JobID
	Job          Job
	DependsOn    JobID
	AllowFailure bool
}

// Fake is an in-process Client for tests and dry runs. It assigns sequential
// job ids and lets callers script job statuses.
type Fake struct {
	mu       sync.Mutex
	next     int
	Jobs     []Enqueued
	Statuses map[JobID]Status
}

// NewFake returns an empty fake batch system.
func NewFake() *Fake {
	return &Fake{Statuses: make(map[JobID]Status)}
}

func (f *Fake) Enqueue(_ context.Context, job Job, dependsOn JobID, allowFailure bool) (JobID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := JobID(fmt.Sprintf("fake.%d", f.next))
	f.Jobs = append(f.Jobs, Enqueued{ID: id, Job: job, DependsOn: dependsOn, AllowFailure: allowFailure})
	f.Statuses[id] = StatusPending
	return id, nil
}

func (f *Fake) Status(_ context.Context, id JobID) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.Statuses[id]
	if !ok {
		return StatusUnknown, fmt.Errorf("unknown job id %s", id)
	}
	return status, nil
}

// SetStatus scripts the status of a job, existing or not.
func (f *Fake) SetStatus(id JobID, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[id] = status
}

// ByName returns the submissions recorded for a job name, in order.
func (f *Fake) ByName(name string) []Enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Enqueued
	for _, e := range f.Jobs {
		if e.Job.Name == name {
			out = append(out, e)
		}
	}
	return out
}
