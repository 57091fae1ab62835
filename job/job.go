package job

import (
	"encoding/json"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
)

// Mode is the execution mode a job was requested with.
type Mode string

const (
	// ModeSync executes the job on the caller's path, bounded by the
	// synchronous timeout.
	ModeSync Mode = "sync"
	// ModeAsync enqueues the job and returns immediately.
	ModeAsync Mode = "async"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	// ErrorExecution means the executor returned an error or panicked.
	ErrorExecution ErrorKind = "execution"
	// ErrorTimeout means the execution exceeded its deadline.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorInterrupted means the job was orphaned by a lost worker.
	ErrorInterrupted ErrorKind = "interrupted"
)

// ErrorInfo describes a failure. It is set if and only if the job failed.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is a tracked execution of a process.
type Job struct {
	processes.Entity

	ID        id.JobID        `json:"jobID"`
	ProcessID string          `json:"processID"`
	Status    Status          `json:"status"`
	Mode      Mode            `json:"mode,omitempty"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	Progress  *int            `json:"progress,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started,omitempty"`
	FinishedAt *time.Time `json:"finished,omitempty"`

	// WorkerID and LeaseExpiresAt are set while the job is running. A
	// running job whose lease expired has lost its worker.
	WorkerID       id.WorkerID `json:"-"`
	LeaseExpiresAt *time.Time  `json:"-"`

	Version int64 `json:"-"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Inputs != nil {
		cp.Inputs = append(json.RawMessage(nil), j.Inputs...)
	}
	if j.Progress != nil {
		p := *j.Progress
		cp.Progress = &p
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	cp.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Less reports whether a sorts before b in listing order: created time,
// then job ID.
func Less(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
