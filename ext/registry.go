package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobAcceptedEntry struct {
	name string
	hook JobAccepted
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobSucceededEntry struct {
	name string
	hook JobSucceeded
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobDismissedEntry struct {
	name string
	hook JobDismissed
}

type jobInterruptedEntry struct {
	name string
	hook JobInterrupted
}

type jobExpungedEntry struct {
	name string
	hook JobExpunged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the engine starts; emitting is safe for
// concurrent use, registering is not.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobAccepted    []jobAcceptedEntry
	jobStarted     []jobStartedEntry
	jobSucceeded   []jobSucceededEntry
	jobFailed      []jobFailedEntry
	jobDismissed   []jobDismissedEntry
	jobInterrupted []jobInterruptedEntry
	jobExpunged    []jobExpungedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobAccepted); ok {
		r.jobAccepted = append(r.jobAccepted, jobAcceptedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, jobSucceededEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobDismissed); ok {
		r.jobDismissed = append(r.jobDismissed, jobDismissedEntry{name, h})
	}
	if h, ok := e.(JobInterrupted); ok {
		r.jobInterrupted = append(r.jobInterrupted, jobInterruptedEntry{name, h})
	}
	if h, ok := e.(JobExpunged); ok {
		r.jobExpunged = append(r.jobExpunged, jobExpungedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions in registration order.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobAccepted notifies all extensions that implement JobAccepted.
func (r *Registry) EmitJobAccepted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobAccepted {
		if err := e.hook.OnJobAccepted(ctx, j); err != nil {
			r.logHookError("OnJobAccepted", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobDismissed notifies all extensions that implement JobDismissed.
func (r *Registry) EmitJobDismissed(ctx context.Context, j *job.Job, forced bool) {
	for _, e := range r.jobDismissed {
		if err := e.hook.OnJobDismissed(ctx, j, forced); err != nil {
			r.logHookError("OnJobDismissed", e.name, err)
		}
	}
}

// EmitJobInterrupted notifies all extensions that implement JobInterrupted.
func (r *Registry) EmitJobInterrupted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobInterrupted {
		if err := e.hook.OnJobInterrupted(ctx, j); err != nil {
			r.logHookError("OnJobInterrupted", e.name, err)
		}
	}
}

// EmitJobExpunged notifies all extensions that implement JobExpunged.
func (r *Registry) EmitJobExpunged(ctx context.Context, jobID id.JobID) {
	for _, e := range r.jobExpunged {
		if err := e.hook.OnJobExpunged(ctx, jobID); err != nil {
			r.logHookError("OnJobExpunged", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
