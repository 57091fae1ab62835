package gc_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/cancellation"
	"github.com/xraph/processes/gc"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
	"github.com/xraph/processes/store/memory"
)

type recorder struct {
	mu          sync.Mutex
	expunged    []id.JobID
	interrupted []*job.Job
}

func (r *recorder) EmitJobExpunged(_ context.Context, jobID id.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expunged = append(r.expunged, jobID)
}

func (r *recorder) EmitJobInterrupted(_ context.Context, j *job.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = append(r.interrupted, j)
}

func seed(t *testing.T, s *memory.Store, status job.Status, finished, lease *time.Time) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:         processes.NewEntity(),
		ID:             id.NewJobID(),
		ProcessID:      "echo",
		Status:         status,
		FinishedAt:     finished,
		LeaseExpiresAt: lease,
		WorkerID:       id.NewWorkerID(),
		Version:        1,
	}
	if status == job.StatusFailed {
		j.Error = &job.ErrorInfo{Kind: job.ErrorExecution, Message: "x"}
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func ago(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(-d)
	return &t
}

// ──────────────────────────────────────────────────
// Retention sweep
// ──────────────────────────────────────────────────

func TestRunOnce_ExpungesOnlyExpiredTerminalJobs(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	c := gc.NewCollector(s, nil, rec, slog.Default(), gc.WithRetention(time.Hour), gc.WithBatchSize(2))

	var expired []*job.Job
	for _, st := range []job.Status{job.StatusSuccessful, job.StatusFailed, job.StatusDismissed} {
		expired = append(expired, seed(t, s, st, ago(2*time.Hour), nil))
	}
	if err := s.PutResults(ctx, expired[0].ID, result.Outputs{"a": 1}); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	fresh := seed(t, s, job.StatusSuccessful, ago(time.Minute), nil)
	accepted := seed(t, s, job.StatusAccepted, nil, nil)
	running := seed(t, s, job.StatusRunning, nil, ptr(time.Now().UTC().Add(time.Hour)))

	report, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Expunged != 3 {
		t.Fatalf("expunged: got %d, want 3", report.Expunged)
	}
	if len(rec.expunged) != 3 {
		t.Fatalf("expunged hooks: got %d, want 3", len(rec.expunged))
	}

	for _, j := range expired {
		if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, processes.ErrGone) {
			t.Fatalf("expired job %s: got %v, want ErrGone", j.Status, err)
		}
	}
	if _, err := s.GetResults(ctx, expired[0].ID); !errors.Is(err, processes.ErrResultsNotFound) {
		t.Fatalf("results of expunged job: got %v, want ErrResultsNotFound", err)
	}
	for _, j := range []*job.Job{fresh, accepted, running} {
		got, err := s.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("job %s was removed: %v", j.Status, err)
		}
		if got.Status != j.Status {
			t.Fatalf("job status changed: got %s, want %s", got.Status, j.Status)
		}
	}
}

// ──────────────────────────────────────────────────
// Orphan reaper
// ──────────────────────────────────────────────────

func TestRunOnce_FailsOrphanedJobs(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	cancels := cancellation.NewController()
	c := gc.NewCollector(s, cancels, rec, slog.Default())

	orphan := seed(t, s, job.StatusRunning, nil, ago(time.Second))
	healthy := seed(t, s, job.StatusRunning, nil, ptr(time.Now().UTC().Add(time.Minute)))
	local := seed(t, s, job.StatusRunning, nil, ago(time.Second))

	_, tok := cancels.Register(ctx, local.ID)
	defer cancels.Release(tok)

	report, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Interrupted != 1 {
		t.Fatalf("interrupted: got %d, want 1", report.Interrupted)
	}

	got, _ := s.GetJob(ctx, orphan.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("orphan status: got %s, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Kind != job.ErrorInterrupted {
		t.Fatalf("orphan error: got %+v, want interrupted", got.Error)
	}
	if got.FinishedAt == nil {
		t.Fatal("orphan has no finished time")
	}
	if len(rec.interrupted) != 1 || rec.interrupted[0].ID.String() != orphan.ID.String() {
		t.Fatal("interrupted hook not emitted for the orphan")
	}

	for _, j := range []*job.Job{healthy, local} {
		got, _ := s.GetJob(ctx, j.ID)
		if got.Status != job.StatusRunning {
			t.Fatalf("job %s: got %s, want running", j.ID, got.Status)
		}
	}
}

func TestRunOnce_ReapedJobsExpireLater(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	c := gc.NewCollector(s, nil, nil, slog.Default(), gc.WithRetention(0))

	orphan := seed(t, s, job.StatusRunning, nil, ago(time.Second))

	first, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if first.Interrupted != 1 {
		t.Fatalf("interrupted: got %d, want 1", first.Interrupted)
	}

	time.Sleep(time.Millisecond)
	second, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if second.Expunged != 1 {
		t.Fatalf("expunged: got %d, want 1", second.Expunged)
	}
	if _, err := s.GetJob(ctx, orphan.ID); !errors.Is(err, processes.ErrGone) {
		t.Fatalf("GetJob: got %v, want ErrGone", err)
	}
}

// ──────────────────────────────────────────────────
// Scheduling
// ──────────────────────────────────────────────────

func TestStart_RunsImmediately(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	c := gc.NewCollector(s, nil, nil, slog.Default(), gc.WithSchedule("@every 1h"))

	orphan := seed(t, s, job.StatusRunning, nil, ago(time.Second))

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = c.Stop(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := s.GetJob(ctx, orphan.ID)
		if got.Status == job.StatusFailed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("orphan was not reaped on start")
}

func TestStart_InvalidSchedule(t *testing.T) {
	c := gc.NewCollector(memory.New(), nil, nil, slog.Default(), gc.WithSchedule("every now and then"))
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	// Stop on a collector that never started is a no-op.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 1m", false},
		{"@hourly", false},
		{"*/5 * * * *", false},
		{"* * *", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := gc.ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
