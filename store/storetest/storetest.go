// Package storetest is a conformance suite for store.Store backends.
//
// Each backend's tests call Run with a constructor that returns a fresh,
// migrated store. The suite checks the compare-and-swap contract, lease
// ownership, tombstones and write-once results the same way for every
// backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
	"github.com/xraph/processes/store"
)

// Factory returns an empty, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Ping", testPing},
		{"MigrateIdempotent", testMigrateIdempotent},
		{"CreateAndGetJob", testCreateAndGetJob},
		{"TransitionJobCAS", testTransitionJobCAS},
		{"TransitionJobSingleWinner", testTransitionJobSingleWinner},
		{"RenewLease", testRenewLease},
		{"UpdateProgress", testUpdateProgress},
		{"ListAndCountJobs", testListAndCountJobs},
		{"ListExpired", testListExpired},
		{"ListOrphaned", testListOrphaned},
		{"ExpungeJob", testExpungeJob},
		{"ResultsWriteOnce", testResultsWriteOnce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// NewJob returns an accepted job ready to be created.
func NewJob(processID string) *job.Job {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &job.Job{
		Entity:    processes.Entity{CreatedAt: now, UpdatedAt: now},
		ID:        id.NewJobID(),
		ProcessID: processID,
		Status:    job.StatusAccepted,
		Mode:      job.ModeAsync,
		Inputs:    json.RawMessage(`{"message":"hi"}`),
		Version:   1,
	}
}

// Claim moves an accepted job to running under workerID with a lease.
func Claim(t *testing.T, s store.Store, j *job.Job, workerID id.WorkerID, lease time.Duration) *job.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	next, err := job.Advance(j, job.StatusRunning, now)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	until := now.Add(lease)
	next.WorkerID = workerID
	next.LeaseExpiresAt = &until
	if err := s.TransitionJob(context.Background(), next, job.StatusAccepted); err != nil {
		t.Fatalf("claim: %v", err)
	}
	return next
}

// Finish moves a running job to the given terminal status at finishedAt.
func Finish(t *testing.T, s store.Store, j *job.Job, to job.Status, finishedAt time.Time) *job.Job {
	t.Helper()
	next, err := job.Advance(j, to, finishedAt)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if to == job.StatusFailed {
		next.Error = &job.ErrorInfo{Kind: job.ErrorExecution, Message: "boom"}
	}
	if err := s.TransitionJob(context.Background(), next, job.StatusRunning); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return next
}

func create(t *testing.T, s store.Store, j *job.Job) *job.Job {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testMigrateIdempotent(t *testing.T, s store.Store) {
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Job store
// ──────────────────────────────────────────────────

func testCreateAndGetJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Fatalf("ID: got %s, want %s", got.ID, j.ID)
	}
	if got.ProcessID != "echo" || got.Status != job.StatusAccepted || got.Mode != job.ModeAsync {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("Version: got %d, want 1", got.Version)
	}
	var in map[string]string
	if err := json.Unmarshal(got.Inputs, &in); err != nil || in["message"] != "hi" {
		t.Fatalf("Inputs: got %s (%v)", got.Inputs, err)
	}
	if !got.CreatedAt.Equal(j.CreatedAt) {
		t.Fatalf("CreatedAt: got %v, want %v", got.CreatedAt, j.CreatedAt)
	}

	if err := s.CreateJob(ctx, j); !errors.Is(err, processes.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob: got %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, processes.ErrJobNotFound) {
		t.Fatalf("GetJob unknown: got %v, want ErrJobNotFound", err)
	}
}

func testTransitionJobCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))
	worker := id.NewWorkerID()

	stale := j.Clone()
	running := Claim(t, s, j, worker, time.Minute)
	if running.Version != 2 {
		t.Fatalf("Version after claim: got %d, want 2", running.Version)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusRunning || got.WorkerID.String() != worker.String() {
		t.Fatalf("after claim: status=%s worker=%s", got.Status, got.WorkerID)
	}
	if got.StartedAt == nil || got.LeaseExpiresAt == nil {
		t.Fatal("claim did not persist start time and lease")
	}

	// A writer that read before the claim loses on both status and version.
	dismissed, _ := job.Advance(stale, job.StatusDismissed, time.Now().UTC())
	if err := s.TransitionJob(ctx, dismissed, job.StatusAccepted); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("stale transition: got %v, want ErrConflict", err)
	}

	// Right status, stale version.
	old := running.Clone()
	old.Version = 1
	failed, _ := job.Advance(old, job.StatusFailed, time.Now().UTC())
	failed.Error = &job.ErrorInfo{Kind: job.ErrorExecution, Message: "x"}
	if err := s.TransitionJob(ctx, failed, job.StatusRunning); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("stale version: got %v, want ErrConflict", err)
	}

	done := Finish(t, s, running, job.StatusSuccessful, time.Now().UTC().Truncate(time.Millisecond))
	got, _ = s.GetJob(ctx, j.ID)
	if got.Status != job.StatusSuccessful || got.Version != done.Version {
		t.Fatalf("after finish: status=%s version=%d", got.Status, got.Version)
	}
	if got.Progress == nil || *got.Progress != 100 {
		t.Fatalf("Progress: got %v, want 100", got.Progress)
	}
	if got.FinishedAt == nil || got.LeaseExpiresAt != nil {
		t.Fatal("terminal job must have a finish time and no lease")
	}

	if err := s.TransitionJob(ctx, NewJob("echo"), job.StatusAccepted); !errors.Is(err, processes.ErrJobNotFound) {
		t.Fatalf("unknown job: got %v, want ErrJobNotFound", err)
	}
}

func testTransitionJobSingleWinner(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))

	const contenders = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _ := job.Advance(j, job.StatusRunning, time.Now().UTC())
			next.WorkerID = id.NewWorkerID()
			err := s.TransitionJob(ctx, next, job.StatusAccepted)
			if err == nil {
				wins.Add(1)
				return
			}
			if !errors.Is(err, processes.ErrConflict) {
				t.Errorf("loser: got %v, want ErrConflict", err)
			}
		}()
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Fatalf("winners: got %d, want 1", n)
	}
}

func testRenewLease(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))
	worker := id.NewWorkerID()

	if err := s.RenewLease(ctx, j.ID, worker, time.Now().Add(time.Minute)); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("renew accepted job: got %v, want ErrConflict", err)
	}

	running := Claim(t, s, j, worker, time.Second)
	until := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	if err := s.RenewLease(ctx, j.ID, worker, until); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.LeaseExpiresAt == nil || !got.LeaseExpiresAt.Equal(until) {
		t.Fatalf("LeaseExpiresAt: got %v, want %v", got.LeaseExpiresAt, until)
	}
	if got.Version != running.Version {
		t.Fatalf("RenewLease changed version: got %d, want %d", got.Version, running.Version)
	}

	if err := s.RenewLease(ctx, j.ID, id.NewWorkerID(), until); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("renew by other worker: got %v, want ErrConflict", err)
	}
	if err := s.RenewLease(ctx, id.NewJobID(), worker, until); !errors.Is(err, processes.ErrJobNotFound) {
		t.Fatalf("renew unknown job: got %v, want ErrJobNotFound", err)
	}
}

func testUpdateProgress(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))

	if err := s.UpdateProgress(ctx, j.ID, 10, "early"); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("progress on accepted job: got %v, want ErrConflict", err)
	}

	running := Claim(t, s, j, id.NewWorkerID(), time.Minute)
	if err := s.UpdateProgress(ctx, j.ID, 42, "halfway"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.Progress == nil || *got.Progress != 42 || got.Message != "halfway" {
		t.Fatalf("progress: got %v %q", got.Progress, got.Message)
	}
	if got.Version != running.Version {
		t.Fatalf("UpdateProgress changed version: got %d, want %d", got.Version, running.Version)
	}
}

func testListAndCountJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 5; i++ {
		j := NewJob("echo")
		if i%2 == 1 {
			j.ProcessID = "sleep"
		}
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		j.UpdatedAt = j.CreatedAt
		create(t, s, j)
		ids = append(ids, j.ID.String())
	}

	all, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("ListJobs: got %d, want 5", len(all))
	}
	for i, j := range all {
		if j.ID.String() != ids[i] {
			t.Fatalf("order at %d: got %s, want %s", i, j.ID, ids[i])
		}
	}

	page, err := s.ListJobs(ctx, job.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListJobs page: %v", err)
	}
	if len(page) != 2 || page[0].ID.String() != ids[2] || page[1].ID.String() != ids[3] {
		t.Fatalf("page: got %d jobs", len(page))
	}

	sleeps, _ := s.ListJobs(ctx, job.ListOpts{ProcessID: "sleep"})
	if len(sleeps) != 2 {
		t.Fatalf("filter by process: got %d, want 2", len(sleeps))
	}

	past, _ := s.ListJobs(ctx, job.ListOpts{Offset: 10})
	if len(past) != 0 {
		t.Fatalf("offset past end: got %d, want 0", len(past))
	}

	total, err := s.CountJobs(ctx, job.CountOpts{})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 5 {
		t.Fatalf("CountJobs: got %d, want 5", total)
	}
	accepted, _ := s.CountJobs(ctx, job.CountOpts{Status: job.StatusAccepted, ProcessID: "echo"})
	if accepted != 3 {
		t.Fatalf("CountJobs filtered: got %d, want 3", accepted)
	}
}

func testListExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	old := Finish(t, s, Claim(t, s, create(t, s, NewJob("echo")), id.NewWorkerID(), time.Minute),
		job.StatusFailed, now.Add(-2*time.Hour))
	older := Finish(t, s, Claim(t, s, create(t, s, NewJob("echo")), id.NewWorkerID(), time.Minute),
		job.StatusSuccessful, now.Add(-3*time.Hour))
	Finish(t, s, Claim(t, s, create(t, s, NewJob("echo")), id.NewWorkerID(), time.Minute),
		job.StatusSuccessful, now)
	create(t, s, NewJob("echo"))

	expired, err := s.ListExpired(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("ListExpired: got %d, want 2", len(expired))
	}
	if expired[0].ID.String() != older.ID.String() || expired[1].ID.String() != old.ID.String() {
		t.Fatal("ListExpired must return oldest first")
	}

	limited, _ := s.ListExpired(ctx, now.Add(-time.Hour), 1)
	if len(limited) != 1 {
		t.Fatalf("ListExpired limit: got %d, want 1", len(limited))
	}
}

func testListOrphaned(t *testing.T, s store.Store) {
	ctx := context.Background()

	orphan := Claim(t, s, create(t, s, NewJob("echo")), id.NewWorkerID(), -time.Second)
	Claim(t, s, create(t, s, NewJob("echo")), id.NewWorkerID(), time.Hour)
	create(t, s, NewJob("echo"))

	got, err := s.ListOrphaned(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListOrphaned: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != orphan.ID.String() {
		t.Fatalf("ListOrphaned: got %d jobs, want the expired lease only", len(got))
	}
	if got[0].WorkerID.String() != orphan.WorkerID.String() {
		t.Fatalf("orphan WorkerID: got %s, want %s", got[0].WorkerID, orphan.WorkerID)
	}
}

func testExpungeJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))

	if err := s.ExpungeJob(ctx, j.ID); !errors.Is(err, processes.ErrConflict) {
		t.Fatalf("expunge accepted job: got %v, want ErrConflict", err)
	}

	running := Claim(t, s, j, id.NewWorkerID(), time.Minute)
	if err := s.PutResults(ctx, j.ID, result.Outputs{"echo": "hi"}); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	Finish(t, s, running, job.StatusSuccessful, time.Now().UTC())

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
		t.Fatalf("second expunge: got %v, want ErrGone", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, processes.ErrJobAlreadyExists) {
		t.Fatalf("recreate expunged job: got %v, want ErrJobAlreadyExists", err)
	}
	if n, _ := s.CountJobs(ctx, job.CountOpts{}); n != 0 {
		t.Fatalf("CountJobs after expunge: got %d, want 0", n)
	}
}

// ──────────────────────────────────────────────────
// Result store
// ──────────────────────────────────────────────────

func testResultsWriteOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := create(t, s, NewJob("echo"))
	Claim(t, s, j, id.NewWorkerID(), time.Minute)

	if _, err := s.GetResults(ctx, j.ID); !errors.Is(err, processes.ErrResultsNotFound) {
		t.Fatalf("GetResults before write: got %v, want ErrResultsNotFound", err)
	}

	outputs := result.Outputs{"echo": "hi", "count": float64(3)}
	if err := s.PutResults(ctx, j.ID, outputs); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	if err := s.PutResults(ctx, j.ID, result.Outputs{"echo": "again"}); !errors.Is(err, processes.ErrResultsExist) {
		t.Fatalf("second PutResults: got %v, want ErrResultsExist", err)
	}

	got, err := s.GetResults(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if got["echo"] != "hi" || got["count"] != float64(3) {
		t.Fatalf("GetResults: got %v", got)
	}

	if err := s.DeleteResults(ctx, j.ID); err != nil {
		t.Fatalf("DeleteResults: %v", err)
	}
	if err := s.DeleteResults(ctx, j.ID); err != nil {
		t.Fatalf("DeleteResults twice: %v", err)
	}
	if _, err := s.GetResults(ctx, j.ID); !errors.Is(err, processes.ErrResultsNotFound) {
		t.Fatalf("GetResults after delete: got %v, want ErrResultsNotFound", err)
	}
}
