package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// Emitter emits collector lifecycle events.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitJobExpunged(ctx context.Context, jobID id.JobID)
	EmitJobInterrupted(ctx context.Context, j *job.Job)
}

// ActiveSet reports whether a job is executing in this process.
// cancellation.Controller satisfies this interface.
type ActiveSet interface {
	IsActive(jobID id.JobID) bool
}

// Report summarizes one collection pass.
type Report struct {
	Expunged    int
	Interrupted int
}

// Option configures a Collector.
type Option func(*Collector)

// WithRetention sets how long finished jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(c *Collector) { c.retention = d }
}

// WithSchedule sets the cron expression that triggers collection passes.
func WithSchedule(expr string) Option {
	return func(c *Collector) { c.schedule = expr }
}

// WithBatchSize sets how many jobs are fetched per store query.
func WithBatchSize(n int) Option {
	return func(c *Collector) { c.batchSize = n }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Collector runs the retention sweep and orphan reaper.
type Collector struct {
	store   job.Store
	active  ActiveSet
	emitter Emitter
	logger  *slog.Logger

	retention time.Duration
	schedule  string
	batchSize int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCollector creates a Collector. active and emitter may be nil.
func NewCollector(
	store job.Store,
	active ActiveSet,
	emitter Emitter,
	logger *slog.Logger,
	opts ...Option,
) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		store:     store,
		active:    active,
		emitter:   emitter,
		logger:    logger,
		retention: 24 * time.Hour,
		schedule:  "@every 1m",
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize < 1 {
		c.batchSize = 1
	}
	return c
}

// Start validates the schedule and launches the collection loop. A pass
// runs immediately so jobs orphaned by a previous crash are failed at
// startup.
func (c *Collector) Start(_ context.Context) error {
	sched, err := ParseSchedule(c.schedule)
	if err != nil {
		return fmt.Errorf("gc: invalid schedule %q: %w", c.schedule, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.loop(sched)

	c.logger.Info("garbage collector started",
		slog.String("schedule", c.schedule),
		slog.Duration("retention", c.retention),
	)
	return nil
}

// Stop signals the loop to stop and waits for an in-flight pass to finish.
func (c *Collector) Stop(_ context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("garbage collector stopped")
	return nil
}

func (c *Collector) loop(sched cronlib.Schedule) {
	defer c.wg.Done()

	c.runPass()
	for {
		wait := time.Until(sched.Next(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-c.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			c.runPass()
		}
	}
}

func (c *Collector) runPass() {
	report, err := c.RunOnce(context.Background())
	if err != nil {
		c.logger.Error("garbage collection pass failed", slog.String("error", err.Error()))
	}
	if report.Expunged > 0 || report.Interrupted > 0 {
		c.logger.Info("garbage collection pass",
			slog.Int("expunged", report.Expunged),
			slog.Int("interrupted", report.Interrupted),
		)
	}
}

// RunOnce performs a single retention sweep followed by an orphan reaper
// pass. Both run even if the other fails.
func (c *Collector) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	expunged, sweepErr := c.sweepExpired(ctx, time.Now().UTC())
	report.Expunged = expunged
	interrupted, reapErr := c.reapOrphans(ctx, time.Now().UTC())
	report.Interrupted = interrupted
	return report, errors.Join(sweepErr, reapErr)
}

// sweepExpired expunges terminal jobs that finished before now minus the
// retention period.
func (c *Collector) sweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-c.retention)
	total := 0
	for {
		jobs, err := c.store.ListExpired(ctx, cutoff, c.batchSize)
		if err != nil {
			return total, fmt.Errorf("list expired jobs: %w", err)
		}

		n := 0
		for _, j := range jobs {
			if err := c.store.ExpungeJob(ctx, j.ID); err != nil {
				if errors.Is(err, processes.ErrGone) || errors.Is(err, processes.ErrJobNotFound) {
					continue // another collector got it
				}
				c.logger.Warn("expunge failed",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			n++
			if c.emitter != nil {
				c.emitter.EmitJobExpunged(ctx, j.ID)
			}
		}
		total += n

		// A short or unproductive batch means nothing more is eligible.
		if len(jobs) < c.batchSize || n == 0 {
			return total, nil
		}
	}
}

// reapOrphans fails running jobs whose lease expired.
func (c *Collector) reapOrphans(ctx context.Context, now time.Time) (int, error) {
	jobs, err := c.store.ListOrphaned(ctx, now, c.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list orphaned jobs: %w", err)
	}

	n := 0
	for _, j := range jobs {
		if c.active != nil && c.active.IsActive(j.ID) {
			continue
		}

		failed, err := job.Advance(j, job.StatusFailed, now)
		if err != nil {
			continue
		}
		failed.Error = &job.ErrorInfo{
			Kind:    job.ErrorInterrupted,
			Message: fmt.Sprintf("worker %s stopped renewing its lease", j.WorkerID),
		}
		if err := c.store.TransitionJob(ctx, failed, job.StatusRunning); err != nil {
			if !errors.Is(err, processes.ErrConflict) {
				c.logger.Warn("orphan reap failed",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		n++
		c.logger.Warn("orphaned job interrupted",
			slog.String("job_id", j.ID.String()),
			slog.String("process_id", j.ProcessID),
			slog.String("worker_id", j.WorkerID.String()),
		)
		if c.emitter != nil {
			c.emitter.EmitJobInterrupted(ctx, failed)
		}
	}
	return n, nil
}
