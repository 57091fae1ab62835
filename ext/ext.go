// Package ext defines the extension system for the job engine.
// Extensions are notified of lifecycle events (job accepted, started,
// succeeded, failed, dismissed, etc.) and can react to them: logging,
// metrics, publishing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobAccepted is called after a job record is created.
type JobAccepted interface {
	OnJobAccepted(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker claims a job and begins executing it.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a job's outputs are stored and it became
// successful.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job becomes failed. j.Error describes why.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job) error
}

// JobDismissed is called when a job becomes dismissed. forced is true when
// the executor did not acknowledge cancellation within the grace period.
type JobDismissed interface {
	OnJobDismissed(ctx context.Context, j *job.Job, forced bool) error
}

// JobInterrupted is called when the orphan reaper fails a job whose worker
// lease expired.
type JobInterrupted interface {
	OnJobInterrupted(ctx context.Context, j *job.Job) error
}

// JobExpunged is called after the garbage collector removed a job and its
// results.
type JobExpunged interface {
	OnJobExpunged(ctx context.Context, jobID id.JobID) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
