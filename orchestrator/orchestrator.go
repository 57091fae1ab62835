package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/processes"
	"github.com/xraph/processes/cancellation"
	"github.com/xraph/processes/ext"
	"github.com/xraph/processes/gc"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	mw "github.com/xraph/processes/middleware"
	"github.com/xraph/processes/observability"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/queue"
	"github.com/xraph/processes/result"
	"github.com/xraph/processes/store"
	"github.com/xraph/processes/worker"
)

// instrumentationName scopes the tracer and meters this package creates.
const instrumentationName = "github.com/xraph/processes"

// maxDismissAttempts bounds the retries of a dismissal that keeps losing
// races against state changes made by workers.
const maxDismissAttempts = 5

// minDismissPoll is the floor of the store polling while a dismissal waits
// for a job executing on another worker.
const minDismissPoll = 10 * time.Millisecond

// Orchestrator owns the job lifecycle: creation, the sync/async execution
// decision, dismissal, result retrieval and listing. It wires the worker
// pool, cancellation controller, admission limits and garbage collector
// around a single store.
type Orchestrator struct {
	store      store.Store
	registry   *process.Registry
	config     processes.Config
	extensions *ext.Registry
	cancels    *cancellation.Controller
	admission  *queue.Manager
	runner     *worker.Runner
	pool       *worker.Pool
	collector  *gc.Collector
	mws        []mw.Middleware
	exts       []ext.Extension
	workerID   id.WorkerID
	logger     *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// ExecuteRequest asks for one execution of a process.
type ExecuteRequest struct {
	ProcessID string
	Inputs    json.RawMessage
	// Mode is the caller's preference. The process's job control options
	// may override it.
	Mode job.Mode
	// Wait bounds a synchronous execution instead of Config.SyncTimeout
	// when positive.
	Wait time.Duration
}

// ExecuteResult describes how an execution request was answered.
type ExecuteResult struct {
	// Job is the job created for the request, as last observed.
	Job *job.Job
	// Async reports whether the caller must poll the job for completion.
	Async bool
	// Outputs holds the results when the job finished successfully
	// within the synchronous wait.
	Outputs result.Outputs
}

// New creates an Orchestrator over the given store and process registry.
// Processes must be registered before Start so their admission limits are
// applied.
func New(s store.Store, registry *process.Registry, opts ...Option) (*Orchestrator, error) {
	if s == nil {
		return nil, processes.ErrNoStore
	}
	if registry == nil {
		return nil, errors.New("processes: no process registry configured")
	}

	o := &Orchestrator{
		store:    s,
		registry: registry,
		config:   processes.DefaultConfig(),
		cancels:  cancellation.NewController(),
		workerID: id.NewWorkerID(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}
	o.config = withDefaults(o.config)

	o.extensions = ext.NewRegistry(o.logger)
	for _, e := range o.exts {
		o.extensions.Register(e)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if o.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(o.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if o.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(o.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if o.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(o.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	o.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(o.logger),
		tracingMw,
		metricsMw,
		mw.Logging(o.logger),
		mw.Timeout(o.processTimeout, o.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(o.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, o.mws...)

	o.admission = queue.NewManager()
	o.runner = worker.NewRunner(s, registry, o.cancels, o.extensions, o.logger,
		worker.WithMiddleware(allMws...),
		worker.WithLeaseTimeout(o.config.LeaseTimeout),
		worker.WithWorkerID(o.workerID),
	)
	o.pool = worker.NewPool(s, o.runner, o.cancels, o.logger,
		worker.WithConcurrency(o.config.Concurrency),
		worker.WithQueueSize(o.config.QueueSize),
		worker.WithPollInterval(o.config.PollInterval),
		worker.WithHeartbeatInterval(o.config.HeartbeatInterval),
		worker.WithAdmission(o.admission),
	)
	o.collector = gc.NewCollector(s, o.cancels, o.extensions, o.logger,
		gc.WithRetention(o.config.Retention),
		gc.WithSchedule(o.config.GCSchedule),
	)

	return o, nil
}

// withDefaults fills unset durations and sizes of cfg from DefaultConfig.
func withDefaults(cfg processes.Config) processes.Config {
	def := processes.DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = def.SyncTimeout
	}
	if cfg.DismissGrace <= 0 {
		cfg.DismissGrace = def.DismissGrace
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = def.LeaseTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.GCSchedule == "" {
		cfg.GCSchedule = def.GCSchedule
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return cfg
}

// processTimeout returns the execution deadline declared by a process.
func (o *Orchestrator) processTimeout(processID string) time.Duration {
	if p, ok := o.registry.Get(processID); ok {
		return p.Timeout
	}
	return 0
}

// applyLimits loads the admission limits of every registered process.
func (o *Orchestrator) applyLimits() {
	for _, d := range o.registry.List() {
		o.admission.SetLimits(queue.Limits{
			ProcessID:      d.ID,
			MaxConcurrency: d.MaxConcurrency,
			RateLimit:      d.RateLimit,
			RateBurst:      d.RateBurst,
		})
	}
}

// Start begins job processing by starting the worker pool and the garbage
// collector.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.applyLimits()
	if err := o.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := o.collector.Start(ctx); err != nil {
		_ = o.pool.Stop(ctx)
		return fmt.Errorf("start garbage collector: %w", err)
	}
	o.logger.Info("orchestrator started",
		slog.String("worker_id", o.workerID.String()),
		slog.Int("processes", len(o.registry.List())),
	)
	return nil
}

// Stop gracefully shuts down the orchestrator. Executions still active
// when ctx expires are cancelled and left running for the orphan reaper.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.collector.Stop(ctx); err != nil {
		o.logger.Error("garbage collector stop error", slog.String("error", err.Error()))
	}
	err := o.pool.Stop(ctx)
	o.extensions.EmitShutdown(ctx)
	return err
}

// ──────────────────────────────────────────────────
// Job creation and execution
// ──────────────────────────────────────────────────

// CreateJob validates inputs, persists an accepted job and queues it for
// asynchronous execution. Invalid inputs are rejected with a
// *process.ValidationError before any job is created.
func (o *Orchestrator) CreateJob(ctx context.Context, processID string, inputs json.RawMessage) (*job.Job, error) {
	proc, err := o.registry.Lookup(processID)
	if err != nil {
		return nil, err
	}
	if err := proc.Validate(inputs); err != nil {
		return nil, err
	}
	j, err := o.create(ctx, proc, inputs, job.ModeAsync)
	if err != nil {
		return nil, err
	}
	o.pool.Enqueue(j.ID)
	return j, nil
}

// Execute answers an execution request. Asynchronous requests return the
// accepted job immediately. Synchronous requests run the job inline and
// wait up to req.Wait, or Config.SyncTimeout when unset. A job that has not
// finished by then keeps running in the background and the result is
// reported as async.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	proc, err := o.registry.Lookup(req.ProcessID)
	if err != nil {
		return nil, err
	}
	if err := proc.Validate(req.Inputs); err != nil {
		return nil, err
	}

	mode := proc.ResolveMode(req.Mode)
	j, err := o.create(ctx, proc, req.Inputs, mode)
	if err != nil {
		return nil, err
	}

	if mode == job.ModeAsync {
		o.pool.Enqueue(j.ID)
		return &ExecuteResult{Job: j, Async: true}, nil
	}
	wait := o.config.SyncTimeout
	if req.Wait > 0 {
		wait = req.Wait
	}
	return o.executeSync(ctx, j, wait)
}

func (o *Orchestrator) executeSync(ctx context.Context, j *job.Job, wait time.Duration) (*ExecuteResult, error) {
	done := o.pool.Watch(j.ID)
	// The execution outlives the caller's wait, so it must not inherit
	// the caller's cancellation.
	if err := o.pool.RunInline(context.WithoutCancel(ctx), j); err != nil {
		// Not admitted or not running: the job stays accepted and is
		// executed from the queue like any async job.
		o.pool.Unwatch(j.ID)
		o.logger.Debug("sync execution deferred to queue",
			slog.String("job_id", j.ID.String()),
			slog.String("process_id", j.ProcessID),
			slog.String("reason", err.Error()),
		)
		o.pool.Enqueue(j.ID)
		return &ExecuteResult{Job: j, Async: true}, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return o.asyncFallback(ctx, j, wait)
	case <-ctx.Done():
		return o.asyncFallback(ctx, j, wait)
	}

	cur, err := o.store.GetJob(context.WithoutCancel(ctx), j.ID)
	if err != nil {
		return nil, err
	}
	res := &ExecuteResult{Job: cur, Async: !cur.Status.IsTerminal()}
	if cur.Status == job.StatusSuccessful {
		out, err := o.store.GetResults(context.WithoutCancel(ctx), j.ID)
		if err != nil {
			return nil, fmt.Errorf("load results of job %s: %w", j.ID, err)
		}
		res.Outputs = out
	}
	return res, nil
}

// asyncFallback returns the current view of a sync job that outlived the
// synchronous wait.
func (o *Orchestrator) asyncFallback(ctx context.Context, j *job.Job, wait time.Duration) (*ExecuteResult, error) {
	o.logger.Info("sync execution exceeded wait, continuing in background",
		slog.String("job_id", j.ID.String()),
		slog.String("process_id", j.ProcessID),
		slog.Duration("wait", wait),
	)
	cur, err := o.store.GetJob(context.WithoutCancel(ctx), j.ID)
	if err != nil {
		cur = j
	}
	return &ExecuteResult{Job: cur, Async: true}, nil
}

// create persists a new accepted job.
func (o *Orchestrator) create(ctx context.Context, proc *process.Process, inputs json.RawMessage, mode job.Mode) (*job.Job, error) {
	if len(inputs) == 0 {
		inputs = json.RawMessage(`{}`)
	}
	j := &job.Job{
		Entity:    processes.NewEntity(),
		ID:        id.NewJobID(),
		ProcessID: proc.ID,
		Status:    job.StatusAccepted,
		Mode:      mode,
		Inputs:    inputs,
		Version:   1,
	}
	if err := o.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	o.extensions.EmitJobAccepted(ctx, j)
	o.logger.Debug("job accepted",
		slog.String("job_id", j.ID.String()),
		slog.String("process_id", j.ProcessID),
		slog.String("mode", string(mode)),
	)
	return j, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetJob returns the current state of a job.
func (o *Orchestrator) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// ListJobs returns a page of jobs ordered by creation time, then ID, and
// the total number of jobs.
func (o *Orchestrator) ListJobs(ctx context.Context, limit, offset int) ([]*job.Job, int64, error) {
	jobs, err := o.store.ListJobs(ctx, job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, err
	}
	total, err := o.store.CountJobs(ctx, job.CountOpts{})
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// GetResults returns the outputs of a successful job. It returns
// processes.ErrNotReady for a job that is not successful.
func (o *Orchestrator) GetResults(ctx context.Context, jobID id.JobID) (result.Outputs, error) {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusSuccessful {
		return nil, fmt.Errorf("%w: job %s is %s", processes.ErrNotReady, jobID, j.Status)
	}
	out, err := o.store.GetResults(ctx, jobID)
	if err != nil {
		if errors.Is(err, processes.ErrResultsNotFound) {
			// Expunged between the two reads.
			if _, getErr := o.store.GetJob(ctx, jobID); errors.Is(getErr, processes.ErrGone) {
				return nil, processes.ErrGone
			}
		}
		return nil, err
	}
	return out, nil
}

// Process returns the description of a registered process.
func (o *Orchestrator) Process(processID string) (process.Description, error) {
	p, err := o.registry.Lookup(processID)
	if err != nil {
		return process.Description{}, err
	}
	return p.Description, nil
}

// Processes lists the descriptions of all registered processes.
func (o *Orchestrator) Processes() []process.Description { return o.registry.List() }

// ──────────────────────────────────────────────────
// Dismissal
// ──────────────────────────────────────────────────

// DismissJob cancels a job. An accepted job is dismissed without ever
// running. A running job is signalled and given Config.DismissGrace to
// stop; after that the dismissal is forced and late results are
// discarded. Dismissing a job that is already finished, dismissed
// included, returns an error wrapping both processes.ErrJobFinished and
// processes.ErrConflict.
func (o *Orchestrator) DismissJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	signalled := false
	for range maxDismissAttempts {
		j, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch j.Status {
		case job.StatusAccepted:
			dismissed, err := o.transition(ctx, j, job.StatusDismissed, nil)
			if errors.Is(err, processes.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, err
			}
			o.extensions.EmitJobDismissed(ctx, dismissed, false)
			o.logger.Info("job dismissed",
				slog.String("job_id", jobID.String()),
				slog.String("process_id", dismissed.ProcessID),
			)
			return dismissed, nil

		case job.StatusRunning:
			if !signalled {
				// Re-read afterwards: the worker either acknowledged with its
				// own transition or the dismissal is forced below.
				signalled = true
				o.waitForWorker(ctx, jobID)
				continue
			}
			dismissed, err := o.transition(ctx, j, job.StatusDismissed, nil)
			if errors.Is(err, processes.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, err
			}
			o.extensions.EmitJobDismissed(ctx, dismissed, true)
			o.logger.Warn("job dismissal forced",
				slog.String("job_id", jobID.String()),
				slog.String("process_id", dismissed.ProcessID),
				slog.String("worker_id", j.WorkerID.String()),
			)
			return dismissed, nil

		default:
			return o.dismissOutcome(j, signalled)
		}
	}
	return nil, fmt.Errorf("%w: dismissal of job %s kept racing", processes.ErrConflict, jobID)
}

// waitForWorker signals the execution of a job and waits up to the dismiss
// grace for its worker to move it out of running. A local execution is
// signalled through its token. A job executing elsewhere learns about the
// dismissal only once it is forced, through its next failing heartbeat, so
// the store is polled in case it finishes on its own meanwhile.
func (o *Orchestrator) waitForWorker(ctx context.Context, jobID id.JobID) {
	timer := time.NewTimer(o.config.DismissGrace)
	defer timer.Stop()

	if tok, ok := o.cancels.Cancel(jobID, cancellation.ErrDismissed); ok {
		select {
		case <-tok.Done():
			return
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	} else if o.pollUntilFinished(ctx, jobID, timer.C) {
		return
	}
	o.logger.Warn("worker did not acknowledge dismissal in time",
		slog.String("job_id", jobID.String()),
		slog.Duration("grace", o.config.DismissGrace),
	)
}

// pollUntilFinished reports whether jobID left running before expired
// fired or ctx ended.
func (o *Orchestrator) pollUntilFinished(ctx context.Context, jobID id.JobID, expired <-chan time.Time) bool {
	poll := min(o.config.PollInterval, o.config.DismissGrace/10)
	ticker := time.NewTicker(max(poll, minDismissPoll))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j, err := o.store.GetJob(ctx, jobID)
			if err != nil || j.Status != job.StatusRunning {
				return true
			}
		case <-expired:
			return false
		case <-ctx.Done():
			return true
		}
	}
}

// dismissOutcome maps the terminal state a dismissal observed to its
// result. Only a dismissal this call signalled, and the worker then
// acknowledged, succeeds; every other terminal state means the job had
// already finished.
func (o *Orchestrator) dismissOutcome(j *job.Job, signalled bool) (*job.Job, error) {
	if signalled && j.Status == job.StatusDismissed {
		return j, nil
	}
	return nil, fmt.Errorf("%w: %w: job %s is %s", processes.ErrJobFinished, processes.ErrConflict, j.ID, j.Status)
}

// transition moves j to status to with a compare-and-swap on the status
// and version it was read with.
func (o *Orchestrator) transition(ctx context.Context, j *job.Job, to job.Status, mutate func(*job.Job)) (*job.Job, error) {
	from := j.Status
	next, err := job.Advance(j, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(next)
	}
	if err := o.store.TransitionJob(ctx, next, from); err != nil {
		return nil, err
	}
	return next, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the effective engine configuration.
func (o *Orchestrator) Config() processes.Config { return o.config }

// Extensions returns the extension registry.
func (o *Orchestrator) Extensions() *ext.Registry { return o.extensions }

// Registry returns the process registry.
func (o *Orchestrator) Registry() *process.Registry { return o.registry }

// Pool returns the worker pool.
func (o *Orchestrator) Pool() *worker.Pool { return o.pool }

// Collector returns the garbage collector.
func (o *Orchestrator) Collector() *gc.Collector { return o.collector }

// Store returns the underlying store.
func (o *Orchestrator) Store() store.Store { return o.store }

// WorkerID returns the identity this orchestrator's workers record on jobs.
func (o *Orchestrator) WorkerID() id.WorkerID { return o.workerID }
