package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func newJob(processID string) *job.Job {
	return &job.Job{
		Entity:    processes.NewEntity(),
		ID:        id.NewJobID(),
		ProcessID: processID,
		Status:    job.StatusAccepted,
		Mode:      job.ModeAsync,
		Inputs:    []byte(`{"message":"hi"}`),
	}
}

// claim moves an accepted job to running for the given worker.
func claim(t *testing.T, s *Store, j *job.Job, worker id.WorkerID) *job.Job {
	t.Helper()
	now := time.Now().UTC()
	next, err := job.Advance(j, job.StatusRunning, now)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	next.WorkerID = worker
	lease := now.Add(time.Minute)
	next.LeaseExpiresAt = &lease
	if err := s.TransitionJob(context.Background(), next, job.StatusAccepted); err != nil {
		t.Fatalf("TransitionJob accepted→running: %v", err)
	}
	return next
}

func TestCreateAndGetJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("echo")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, processes.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob: got %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ProcessID != "echo" || got.Status != job.StatusAccepted {
		t.Fatalf("GetJob returned %+v", got)
	}

	// Mutating the returned copy must not reach the store.
	got.Status = job.StatusFailed
	again, _ := s.GetJob(ctx, j.ID)
	if again.Status != job.StatusAccepted {
		t.Fatalf("store was mutated through returned copy: %s", again.Status)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, processes.ErrJobNotFound) {
		t.Fatalf("GetJob unknown: got %v, want ErrJobNotFound", err)
	}
}

func TestTransitionJobCAS(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("echo")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	running := claim(t, s, j, id.NewWorkerID())
	if running.Version != 1 {
		t.Fatalf("version after claim: got %d, want 1", running.Version)
	}

	tests := []struct {
		name    string
		mutate  func(*job.Job)
		from    job.Status
		wantErr error
	}{
		{"wrong from status", func(*job.Job) {}, job.StatusAccepted, processes.ErrConflict},
		{"stale version", func(c *job.Job) { c.Version = 0 }, job.StatusRunning, processes.ErrConflict},
		{"unknown job", func(c *job.Job) { c.ID = id.NewJobID() }, job.StatusRunning, processes.ErrJobNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := running.Clone()
			c.Status = job.StatusSuccessful
			tt.mutate(c)
			if err := s.TransitionJob(ctx, c, tt.from); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	done, _ := job.Advance(running, job.StatusSuccessful, time.Now().UTC())
	if err := s.TransitionJob(ctx, done, job.StatusRunning); err != nil {
		t.Fatalf("TransitionJob running→successful: %v", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusSuccessful || got.Version != 2 {
		t.Fatalf("got status %s version %d, want successful 2", got.Status, got.Version)
	}
}

func TestTransitionJobSingleWinner(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("echo")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	const contenders = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _ := job.Advance(j, job.StatusRunning, time.Now().UTC())
			next.WorkerID = id.NewWorkerID()
			if err := s.TransitionJob(ctx, next, job.StatusAccepted); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("got %d winners, want exactly 1", wins)
	}
}

func TestRenewLeaseAndProgress(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("sleep")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Neither succeeds before the job runs.
	if err := s.RenewLease(ctx, j.ID, id.NewWorkerID(), time.Now()); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("RenewLease on accepted job: got %v, want ErrConflict", err)
	}
	if err := s.UpdateProgress(ctx, j.ID, 10, "x"); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("UpdateProgress on accepted job: got %v, want ErrConflict", err)
	}

	worker := id.NewWorkerID()
	running := claim(t, s, j, worker)

	until := time.Now().UTC().Add(time.Hour)
	if err := s.RenewLease(ctx, j.ID, worker, until); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	if err := s.RenewLease(ctx, j.ID, id.NewWorkerID(), until); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("RenewLease by other worker: got %v, want ErrConflict", err)
	}
	if err := s.UpdateProgress(ctx, j.ID, 40, "halfway"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Version != running.Version {
		t.Fatalf("lease/progress changed version: got %d, want %d", got.Version, running.Version)
	}
	if got.Progress == nil || *got.Progress != 40 || got.Message != "halfway" {
		t.Fatalf("progress not recorded: %+v", got)
	}
	if got.LeaseExpiresAt == nil || !got.LeaseExpiresAt.Equal(until) {
		t.Fatalf("lease not renewed: %v", got.LeaseExpiresAt)
	}
}

func TestListAndCountJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	var ids []id.JobID
	for i := range 5 {
		j := newJob("echo")
		if i%2 == 1 {
			j.ProcessID = "sleep"
		}
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		ids = append(ids, j.ID)
	}

	tests := []struct {
		name    string
		opts    job.ListOpts
		wantIDs []id.JobID
	}{
		{"all", job.ListOpts{}, ids},
		{"first page", job.ListOpts{Limit: 2}, ids[:2]},
		{"second page", job.ListOpts{Limit: 2, Offset: 2}, ids[2:4]},
		{"past end", job.ListOpts{Offset: 10}, nil},
		{"by process", job.ListOpts{ProcessID: "sleep"}, []id.JobID{ids[1], ids[3]}},
		{"by status", job.ListOpts{Status: job.StatusRunning}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.wantIDs))
			}
			for i := range got {
				if got[i].ID.String() != tt.wantIDs[i].String() {
					t.Fatalf("job %d: got %s, want %s", i, got[i].ID, tt.wantIDs[i])
				}
			}
		})
	}

	n, err := s.CountJobs(ctx, job.CountOpts{ProcessID: "echo"})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountJobs echo: got %d, want 3", n)
	}
}

func TestListExpiredAndOrphaned(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	old := newJob("echo")
	old.Status = job.StatusFailed
	oldFinish := now.Add(-2 * time.Hour)
	old.FinishedAt = &oldFinish

	recent := newJob("echo")
	recent.Status = job.StatusSuccessful
	recentFinish := now.Add(-time.Minute)
	recent.FinishedAt = &recentFinish

	orphan := newJob("sleep")
	orphan.Status = job.StatusRunning
	expired := now.Add(-time.Second)
	orphan.LeaseExpiresAt = &expired

	healthy := newJob("sleep")
	healthy.Status = job.StatusRunning
	future := now.Add(time.Minute)
	healthy.LeaseExpiresAt = &future

	for _, j := range []*job.Job{old, recent, orphan, healthy} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	exp, err := s.ListExpired(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(exp) != 1 || exp[0].ID.String() != old.ID.String() {
		t.Fatalf("ListExpired: got %d jobs, want only the old one", len(exp))
	}

	orph, err := s.ListOrphaned(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListOrphaned: %v", err)
	}
	if len(orph) != 1 || orph[0].ID.String() != orphan.ID.String() {
		t.Fatalf("ListOrphaned: got %d jobs, want only the orphan", len(orph))
	}
}

func TestExpungeJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("echo")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.ExpungeJob(ctx, j.ID); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("ExpungeJob on accepted job: got %v, want ErrConflict", err)
	}

	running := claim(t, s, j, id.NewWorkerID())
	if err := s.PutResults(ctx, j.ID, result.Outputs{"echo": "hi"}); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	done, _ := job.Advance(running, job.StatusSuccessful, time.Now().UTC())
	if err := s.TransitionJob(ctx, done, job.StatusRunning); err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}

	if err := s.ExpungeJob(ctx, j.ID); err != nil {
		t.Fatalf("ExpungeJob: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, processes.ErrGone) {
		t.Fatalf("GetJob after expunge: got %v, want ErrGone", err)
	}
	if _, err := s.GetResults(ctx, j.ID); !errors.Is(err, processes.ErrResultsNotFound) {
		t.Fatalf("GetResults after expunge: got %v, want ErrResultsNotFound", err)
	}
	if err := s.ExpungeJob(ctx, j.ID); !errors.Is(err, processes.ErrGone) {
		t.Fatalf("second ExpungeJob: got %v, want ErrGone", err)
	}
	if n, _ := s.CountJobs(ctx, job.CountOpts{}); n != 0 {
		t.Fatalf("expunged job still counted: %d", n)
	}
}

// ──────────────────────────────────────────────────
// Result Store tests
// ──────────────────────────────────────────────────

func TestResultsWriteOnce(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	jobID := id.NewJobID()

	if _, err := s.GetResults(ctx, jobID); !errors.Is(err, processes.ErrResultsNotFound) {
		t.Fatalf("GetResults before put: got %v, want ErrResultsNotFound", err)
	}

	out := result.Outputs{"count": 3}
	if err := s.PutResults(ctx, jobID, out); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	out["count"] = 99 // must not leak into the store

	if err := s.PutResults(ctx, jobID, result.Outputs{"count": 4}); !errors.Is(err, processes.ErrResultsExist) {
		t.Fatalf("second PutResults: got %v, want ErrResultsExist", err)
	}

	got, err := s.GetResults(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	// JSON numbers decode as float64.
	if got["count"] != float64(3) {
		t.Fatalf("GetResults: got %v, want 3", got["count"])
	}

	if err := s.DeleteResults(ctx, jobID); err != nil {
		t.Fatalf("DeleteResults: %v", err)
	}
	if err := s.DeleteResults(ctx, jobID); err != nil {
		t.Fatalf("DeleteResults on missing results: %v", err)
	}
	if err := s.PutResults(ctx, jobID, result.Outputs{}); err != nil {
		t.Fatalf("PutResults after delete: %v", err)
	}
}
