package job

import (
	"context"
	"time"

	"github.com/xraph/processes/id"
)

// ListOpts controls pagination and filtering for job list queries.
// Results are ordered by creation time, then job ID.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Status filters by job status. Empty means all statuses.
	Status Status
	// ProcessID filters by process. Empty means all processes.
	ProcessID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	Status    Status
	ProcessID string
}

// Store defines the persistence contract for job records.
type Store interface {
	// CreateJob persists a new job. It returns processes.ErrJobAlreadyExists
	// if the ID is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID. It returns processes.ErrGone if the job
	// was expunged and processes.ErrJobNotFound if it never existed.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs ordered by creation time, then ID.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// TransitionJob replaces the stored job with j if the stored status is
	// from and the stored version equals j.Version. On success the stored
	// version and j.Version are incremented. It returns
	// processes.ErrConflict on mismatch.
	TransitionJob(ctx context.Context, j *Job, from Status) error

	// RenewLease extends the lease of a running job held by workerID.
	// It does not change the job's version.
	RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error

	// UpdateProgress records advisory progress for a running job.
	// It does not change the job's version.
	UpdateProgress(ctx context.Context, jobID id.JobID, progress int, message string) error

	// ListExpired returns terminal jobs that finished before the cutoff.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Job, error)

	// ListOrphaned returns running jobs whose lease expired before now.
	ListOrphaned(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ExpungeJob deletes a terminal job and its results atomically and
	// leaves a tombstone so later lookups report processes.ErrGone.
	// It returns processes.ErrConflict if the job is not terminal.
	ExpungeJob(ctx context.Context, jobID id.JobID) error
}
