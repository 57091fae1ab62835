package job

import (
	"fmt"
	"time"

	"github.com/xraph/processes"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusAccepted means the job is waiting for a worker.
	StatusAccepted Status = "accepted"
	// StatusRunning means a worker is executing the job.
	StatusRunning Status = "running"
	// StatusSuccessful means the job finished and its outputs are stored.
	StatusSuccessful Status = "successful"
	// StatusFailed means the job finished with an error.
	StatusFailed Status = "failed"
	// StatusDismissed means the job was cancelled by a client.
	StatusDismissed Status = "dismissed"
)

// transitions lists the legal successor states of every state.
var transitions = map[Status][]Status{
	StatusAccepted: {StatusRunning, StatusDismissed},
	StatusRunning:  {StatusSuccessful, StatusFailed, StatusDismissed},
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusDismissed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusRunning, StatusSuccessful, StatusFailed, StatusDismissed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance returns a copy of j moved to status to, with the bookkeeping
// fields the state machine requires: StartedAt when entering running,
// FinishedAt when entering a terminal state, and the lease cleared once the
// job leaves running. It returns processes.ErrInvalidTransition if the edge
// does not exist. The version is left untouched; stores bump it on write.
func Advance(j *Job, to Status, now time.Time) (*Job, error) {
	if !CanTransition(j.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s", processes.ErrInvalidTransition, j.Status, to)
	}
	next := j.Clone()
	next.Status = to
	next.UpdatedAt = now
	if to == StatusRunning {
		next.StartedAt = &now
	}
	if to.IsTerminal() {
		next.FinishedAt = &now
		next.LeaseExpiresAt = nil
		if to == StatusSuccessful {
			p := 100
			next.Progress = &p
		}
	}
	if to != StatusFailed {
		next.Error = nil
	}
	return next, nil
}
