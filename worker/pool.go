package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/cancellation"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

var (
	// ErrPoolStopped is returned by RunInline when the pool is not running.
	ErrPoolStopped = errors.New("worker: pool not running")

	// ErrNotAdmitted is returned by RunInline when the process is at its
	// concurrency or rate limit.
	ErrNotAdmitted = errors.New("worker: process at admission limit")
)

// Admission controls per-process concurrency and rate limits. The pool calls
// Acquire before claiming a dequeued job and Release after it finishes.
type Admission interface {
	// Acquire reports whether a job of the process may start now.
	Acquire(processID string) bool
	// Release returns the slot taken by Acquire.
	Release(processID string)
}

// Pool manages a set of concurrent worker goroutines draining a bounded
// FIFO of job IDs through the Runner.
//
// Enqueue never blocks and never rejects: a job that does not fit in the
// FIFO stays accepted in the store and a backfill loop offers it again.
type Pool struct {
	store       job.Store
	runner      *Runner
	cancels     *cancellation.Controller
	concurrency int
	queueSize   int
	logger      *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration

	// Per-process admission (optional).
	admission Admission

	queue  chan id.JobID
	queued map[string]struct{}
	qmu    sync.Mutex

	waiters map[string][]chan struct{}
	wmu     sync.Mutex

	stopCh  chan struct{}
	drained chan struct{}
	wg      sync.WaitGroup
	bg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithQueueSize bounds the in-memory FIFO.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) { p.queueSize = n }
}

// WithPollInterval sets how often the FIFO is backfilled from the store.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool renews the leases of its
// active jobs. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithAdmission sets the per-process admission controller.
func WithAdmission(a Admission) PoolOption {
	return func(p *Pool) { p.admission = a }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	runner *Runner,
	cancels *cancellation.Controller,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:             store,
		runner:            runner,
		cancels:           cancels,
		concurrency:       8,
		queueSize:         256,
		pollInterval:      time.Second,
		heartbeatInterval: 10 * time.Second,
		logger:            logger,
		queued:            make(map[string]struct{}),
		waiters:           make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.queueSize < 1 {
		p.queueSize = 1
	}
	p.queue = make(chan id.JobID, p.queueSize)
	return p
}

// WorkerID returns the identity this pool records on claimed jobs.
func (p *Pool) WorkerID() id.WorkerID { return p.runner.WorkerID() }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.drained = make(chan struct{})

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.WorkerID().String()),
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", p.queueSize),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	p.wg.Add(1)
	go p.backfillLoop()

	// Leases must keep being renewed while the pool drains.
	if p.heartbeatInterval > 0 {
		p.bg.Add(1)
		go p.heartbeatLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current job. If ctx expires first, active executions are cancelled with
// cancellation.ErrShutdown; their jobs stay running until the orphan reaper
// fails them as interrupted.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.WorkerID().String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		n := p.cancels.CancelAll(cancellation.ErrShutdown)
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs",
			slog.Int("active", n),
		)
		<-done
	}

	close(p.drained)
	p.bg.Wait()

	// Whatever is still queued stays accepted in the store.
	p.qmu.Lock()
	for len(p.queue) > 0 {
		<-p.queue
	}
	clear(p.queued)
	p.qmu.Unlock()
	return nil
}

// Enqueue offers a job to the FIFO. It never blocks: if the FIFO is full
// or the job is already queued, the call is a no-op and the backfill loop
// picks the job up later.
func (p *Pool) Enqueue(jobID id.JobID) {
	p.qmu.Lock()
	defer p.qmu.Unlock()

	key := jobID.String()
	if _, ok := p.queued[key]; ok {
		return
	}
	select {
	case p.queue <- jobID:
		p.queued[key] = struct{}{}
	default:
		p.logger.Debug("queue full, job left for backfill", slog.String("job_id", key))
	}
}

// Watch returns a channel closed when this pool finishes handling jobID.
// Register the watch before the job can start to avoid missing it.
func (p *Pool) Watch(jobID id.JobID) <-chan struct{} {
	ch := make(chan struct{})
	p.wmu.Lock()
	p.waiters[jobID.String()] = append(p.waiters[jobID.String()], ch)
	p.wmu.Unlock()
	return ch
}

// Unwatch drops all watches on jobID without signalling them.
func (p *Pool) Unwatch(jobID id.JobID) {
	p.wmu.Lock()
	delete(p.waiters, jobID.String())
	p.wmu.Unlock()
}

func (p *Pool) notify(jobID id.JobID) {
	p.wmu.Lock()
	chs := p.waiters[jobID.String()]
	delete(p.waiters, jobID.String())
	p.wmu.Unlock()
	for _, ch := range chs {
		close(ch)
	}
}

// RunInline claims j and executes it on a goroutine tracked by the pool,
// outside the FIFO and the worker slots. Completion is signalled through
// Watch. It returns ErrPoolStopped if the pool is not running and
// ErrNotAdmitted if admission denies the process a slot; in both cases j
// is left untouched.
func (p *Pool) RunInline(ctx context.Context, j *job.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrPoolStopped
	}
	if p.admission != nil && !p.admission.Acquire(j.ProcessID) {
		return ErrNotAdmitted
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.admission != nil {
			defer p.admission.Release(j.ProcessID)
		}
		p.run(ctx, j)
	}()
	return nil
}

// Active returns the number of executions in progress.
func (p *Pool) Active() int { return p.cancels.Len() }

// Queued returns the number of job IDs waiting in the FIFO.
func (p *Pool) Queued() int { return len(p.queue) }

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case jobID := <-p.queue:
			p.qmu.Lock()
			delete(p.queued, jobID.String())
			p.qmu.Unlock()
			p.process(jobID)
		}
	}
}

// process loads a dequeued job and runs it if it is still accepted and
// admitted.
func (p *Pool) process(jobID id.JobID) {
	ctx := context.Background()
	j, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Warn("dequeued job not loadable",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if j.Status != job.StatusAccepted {
		return
	}

	if p.admission != nil {
		if !p.admission.Acquire(j.ProcessID) {
			// Stays accepted; the backfill loop offers it again.
			p.logger.Debug("job not admitted",
				slog.String("job_id", jobID.String()),
				slog.String("process_id", j.ProcessID),
			)
			return
		}
		defer p.admission.Release(j.ProcessID)
	}

	p.run(ctx, j)
}

func (p *Pool) run(ctx context.Context, j *job.Job) {
	err := p.runner.Run(ctx, j)
	switch {
	case err == nil:
	case errors.Is(err, processes.ErrConflict):
		// Claimed or dismissed elsewhere. Wake watchers if it already ended.
		if cur, getErr := p.store.GetJob(context.WithoutCancel(ctx), j.ID); getErr != nil || !cur.Status.IsTerminal() {
			return
		}
	default:
		p.logger.Debug("job execution ended with error",
			slog.String("job_id", j.ID.String()),
			slog.String("process_id", j.ProcessID),
			slog.String("error", err.Error()),
		)
	}
	p.notify(j.ID)
}

// backfillLoop periodically refills the FIFO with accepted jobs, oldest
// first.
func (p *Pool) backfillLoop() {
	defer p.wg.Done()

	p.backfill()
	for {
		if !p.sleep() {
			return
		}
		p.backfill()
	}
}

func (p *Pool) backfill() {
	if len(p.queue) >= p.queueSize {
		return
	}
	jobs, err := p.store.ListJobs(context.Background(), job.ListOpts{
		Status: job.StatusAccepted,
		Limit:  p.queueSize,
	})
	if err != nil {
		p.logger.Error("backfill error", slog.String("error", err.Error()))
		return
	}
	for _, j := range jobs {
		p.Enqueue(j.ID)
	}
}

// heartbeatLoop periodically renews the leases of all active jobs.
func (p *Pool) heartbeatLoop() {
	defer p.bg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.drained:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	until := time.Now().UTC().Add(p.runner.LeaseTimeout())
	for _, jobID := range p.cancels.Active() {
		err := p.store.RenewLease(context.Background(), jobID, p.WorkerID(), until)
		switch {
		case err == nil:
		case errors.Is(err, processes.ErrConflict) && p.notYetClaimed(jobID):
			// Registered just ahead of its claim.
		case errors.Is(err, processes.ErrConflict),
			errors.Is(err, processes.ErrJobNotFound),
			errors.Is(err, processes.ErrGone):
			// Someone else finished the job; stop working on it.
			p.cancels.Cancel(jobID, ErrLeaseLost)
		default:
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) notYetClaimed(jobID id.JobID) bool {
	j, err := p.store.GetJob(context.Background(), jobID)
	return err == nil && j.Status == job.StatusAccepted
}

// sleep waits one poll interval. It returns false if the pool is stopping.
func (p *Pool) sleep() bool {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	}
}
