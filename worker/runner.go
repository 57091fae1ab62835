// Package worker provides the execution side of the engine: a Runner that
// drives one job through claim, execution and its terminal transition,
// and a Pool of worker goroutines draining a bounded FIFO of job IDs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/cancellation"
	"github.com/xraph/processes/ext"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/middleware"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

// ErrLeaseLost is the cancellation cause for an execution whose job was
// moved out of running by someone else (a forced dismissal or the orphan
// reaper of another node).
var ErrLeaseLost = errors.New("worker: job lease lost")

// Store is the persistence the runner needs.
type Store interface {
	job.Store
	result.Store
}

// Runner executes single jobs. Every state change it makes is a
// compare-and-swap, so a runner that loses a race never overwrites the
// winner's transition and never leaves outputs behind for a job that is not
// successful.
type Runner struct {
	store        Store
	registry     *process.Registry
	cancels      *cancellation.Controller
	extensions   *ext.Registry
	mw           middleware.Middleware
	workerID     id.WorkerID
	leaseTimeout time.Duration
	logger       *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMiddleware appends execution middleware. The first middleware is the
// outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) RunnerOption {
	return func(r *Runner) { r.mw = middleware.Chain(mws...) }
}

// WithLeaseTimeout sets how long a claim stays valid without a heartbeat.
func WithLeaseTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.leaseTimeout = d }
}

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(wid id.WorkerID) RunnerOption {
	return func(r *Runner) { r.workerID = wid }
}

// NewRunner creates a Runner with the given dependencies.
func NewRunner(
	store Store,
	registry *process.Registry,
	cancels *cancellation.Controller,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		store:        store,
		registry:     registry,
		cancels:      cancels,
		extensions:   extensions,
		mw:           middleware.Chain(),
		workerID:     id.NewWorkerID(),
		leaseTimeout: 30 * time.Second,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WorkerID returns the identity recorded on jobs this runner claims.
func (r *Runner) WorkerID() id.WorkerID { return r.workerID }

// LeaseTimeout returns the lease duration granted on claim and heartbeat.
func (r *Runner) LeaseTimeout() time.Duration { return r.leaseTimeout }

// Run claims an accepted job and executes it to a terminal state.
// It returns processes.ErrConflict if the job could not be claimed.
// Execution errors are recorded on the job; the returned error only
// describes what happened for logging.
func (r *Runner) Run(ctx context.Context, j *job.Job) error {
	// Store writes must outlive a cancelled request on the sync path.
	ctx = context.WithoutCancel(ctx)

	// Registered before the claim so a dismissal can never observe the job
	// running without a token to signal.
	execCtx, tok, ok := r.cancels.TryRegister(ctx, j.ID)
	if !ok {
		return fmt.Errorf("%w: job %s is already executing here", processes.ErrConflict, j.ID)
	}
	defer r.cancels.Release(tok)

	claimed, err := r.claim(ctx, j)
	if err != nil {
		return err
	}
	r.extensions.EmitJobStarted(ctx, claimed)

	start := time.Now()
	out, execErr := r.execute(execCtx, claimed)
	elapsed := time.Since(start)

	cause := context.Cause(execCtx)
	switch {
	case errors.Is(cause, cancellation.ErrDismissed):
		return r.handleDismissed(ctx, claimed)
	case errors.Is(cause, ErrLeaseLost):
		r.logger.Warn("execution result discarded, lease lost",
			slog.String("job_id", claimed.ID.String()),
		)
		return ErrLeaseLost
	case execErr != nil && errors.Is(cause, cancellation.ErrShutdown):
		// Left running; the orphan reaper fails it once the lease expires.
		r.logger.Warn("execution interrupted by shutdown",
			slog.String("job_id", claimed.ID.String()),
			slog.String("process_id", claimed.ProcessID),
		)
		return execErr
	case execErr != nil:
		return r.handleFailure(ctx, claimed, execErr)
	default:
		return r.handleSuccess(ctx, claimed, out, elapsed)
	}
}

// claim moves j from accepted to running under this runner's lease.
func (r *Runner) claim(ctx context.Context, j *job.Job) (*job.Job, error) {
	now := time.Now().UTC()
	next, err := job.Advance(j, job.StatusRunning, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processes.ErrConflict, err)
	}
	lease := now.Add(r.leaseTimeout)
	next.WorkerID = r.workerID
	next.LeaseExpiresAt = &lease

	if err := r.store.TransitionJob(ctx, next, job.StatusAccepted); err != nil {
		return nil, err
	}
	return next, nil
}

// execute runs the process executor through the middleware chain.
func (r *Runner) execute(ctx context.Context, j *job.Job) (result.Outputs, error) {
	proc, err := r.registry.Lookup(j.ProcessID)
	if err != nil {
		return nil, err
	}

	terminal := func(ctx context.Context) (result.Outputs, error) {
		return proc.Executor.Execute(ctx, j.Inputs)
	}
	withJob := func(ctx context.Context) (result.Outputs, error) {
		return middleware.JobContext(r.reportProgress)(ctx, j, terminal)
	}
	return r.mw(ctx, j, withJob)
}

func (r *Runner) reportProgress(ctx context.Context, percent int, message string) {
	jobID, ok := process.JobIDFromContext(ctx)
	if !ok {
		return
	}
	if err := r.store.UpdateProgress(context.WithoutCancel(ctx), jobID, percent, message); err != nil {
		r.logger.Debug("progress update dropped",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// finalize moves a job this runner claimed from running to `to`. It
// re-reads the job so advisory fields written since the claim survive, and
// returns processes.ErrConflict if anyone else transitioned it meanwhile.
func (r *Runner) finalize(ctx context.Context, claimed *job.Job, to job.Status, mutate func(*job.Job)) (*job.Job, error) {
	cur, err := r.store.GetJob(ctx, claimed.ID)
	if err != nil {
		return nil, err
	}
	if cur.Status != job.StatusRunning || cur.Version != claimed.Version {
		return nil, fmt.Errorf("%w: job %s is %s", processes.ErrConflict, claimed.ID, cur.Status)
	}
	next, err := job.Advance(cur, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(next)
	}
	if err := r.store.TransitionJob(ctx, next, job.StatusRunning); err != nil {
		return nil, err
	}
	return next, nil
}

// handleSuccess stores the outputs, then marks the job successful. Nothing
// is written for a job that is no longer running, and outputs written for a
// job that lost the race afterwards are deleted again.
func (r *Runner) handleSuccess(ctx context.Context, claimed *job.Job, out result.Outputs, elapsed time.Duration) error {
	cur, err := r.store.GetJob(ctx, claimed.ID)
	if err != nil {
		return err
	}
	if cur.Status != job.StatusRunning || cur.Version != claimed.Version {
		r.logger.Info("outputs discarded, job already finished",
			slog.String("job_id", claimed.ID.String()),
			slog.String("status", string(cur.Status)),
		)
		return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, claimed.ID, cur.Status)
	}

	if err := r.store.PutResults(ctx, claimed.ID, out); err != nil {
		return r.handleFailure(ctx, claimed, fmt.Errorf("store results: %w", err))
	}

	done, err := r.finalize(ctx, claimed, job.StatusSuccessful, nil)
	if err != nil {
		if delErr := r.store.DeleteResults(ctx, claimed.ID); delErr != nil {
			r.logger.Error("failed to discard outputs of lost job",
				slog.String("job_id", claimed.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		r.logger.Info("outputs discarded, job already finished",
			slog.String("job_id", claimed.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.extensions.EmitJobSucceeded(ctx, done, elapsed)
	return nil
}

// handleFailure records the execution error on the job.
func (r *Runner) handleFailure(ctx context.Context, claimed *job.Job, execErr error) error {
	info := &job.ErrorInfo{Kind: job.ErrorExecution, Message: execErr.Error()}
	if errors.Is(execErr, context.DeadlineExceeded) {
		info.Kind = job.ErrorTimeout
	}

	failed, err := r.finalize(ctx, claimed, job.StatusFailed, func(j *job.Job) { j.Error = info })
	if err != nil {
		r.logger.Info("failure not recorded, job already finished",
			slog.String("job_id", claimed.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.extensions.EmitJobFailed(ctx, failed)
	return execErr
}

// handleDismissed acknowledges a cancellation signal. A forced dismissal
// that already happened leaves nothing to do.
func (r *Runner) handleDismissed(ctx context.Context, claimed *job.Job) error {
	dismissed, err := r.finalize(ctx, claimed, job.StatusDismissed, nil)
	if err != nil {
		if errors.Is(err, processes.ErrConflict) {
			return nil
		}
		return err
	}
	r.extensions.EmitJobDismissed(ctx, dismissed, false)
	r.logger.Info("job dismissed",
		slog.String("job_id", claimed.ID.String()),
		slog.String("process_id", claimed.ProcessID),
	)
	return nil
}
