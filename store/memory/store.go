package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store    = (*Store)(nil)
	_ result.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Job
	results map[string][]byte // encoded outputs, keyed by job ID

	// tombstones records expunged job IDs so lookups report ErrGone.
	tombstones map[string]time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:       make(map[string]*job.Job),
		results:    make(map[string][]byte),
		tombstones: make(map[string]time.Time),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return processes.ErrJobAlreadyExists
	}
	if _, gone := m.tombstones[key]; gone {
		return processes.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := jobID.String()
	j, ok := m.jobs[key]
	if !ok {
		if _, gone := m.tombstones[key]; gone {
			return nil, processes.ErrGone
		}
		return nil, processes.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobs returns jobs ordered by creation time, then ID.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !matches(j, opts.Status, opts.ProcessID) {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(i, k int) bool { return job.Less(matched[i], matched[k]) })

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*job.Job{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*job.Job, len(matched))
	for i, j := range matched {
		out[i] = j.Clone()
	}
	return out, nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if matches(j, opts.Status, opts.ProcessID) {
			n++
		}
	}
	return n, nil
}

// TransitionJob replaces the stored job if its status and version still
// match what the caller read.
func (m *Store) TransitionJob(_ context.Context, j *job.Job, from job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	cur, ok := m.jobs[key]
	if !ok {
		if _, gone := m.tombstones[key]; gone {
			return processes.ErrGone
		}
		return processes.ErrJobNotFound
	}
	if cur.Status != from || cur.Version != j.Version {
		return fmt.Errorf("%w: job %s is %s at version %d", processes.ErrConflict, key, cur.Status, cur.Version)
	}

	j.Version++
	m.jobs[key] = j.Clone()
	return nil
}

// RenewLease extends the lease of a running job held by workerID.
func (m *Store) RenewLease(_ context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusRunning || j.WorkerID.String() != workerID.String() {
		return fmt.Errorf("%w: job %s is not held by %s", processes.ErrConflict, jobID, workerID)
	}
	u := until
	j.LeaseExpiresAt = &u
	return nil
}

// UpdateProgress records advisory progress for a running job.
func (m *Store) UpdateProgress(_ context.Context, jobID id.JobID, progress int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusRunning {
		return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, jobID, j.Status)
	}
	p := progress
	j.Progress = &p
	j.Message = message
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ListExpired returns terminal jobs that finished before the cutoff,
// oldest first.
func (m *Store) ListExpired(_ context.Context, before time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if !j.Status.IsTerminal() || j.FinishedAt == nil || !j.FinishedAt.Before(before) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FinishedAt.Before(*out[k].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListOrphaned returns running jobs whose lease expired before now.
func (m *Store) ListOrphaned(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusRunning || j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Before(now) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].LeaseExpiresAt.Before(*out[k].LeaseExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExpungeJob deletes a terminal job and its results and leaves a tombstone.
func (m *Store) ExpungeJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	if !j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, jobID, j.Status)
	}
	key := jobID.String()
	delete(m.jobs, key)
	delete(m.results, key)
	m.tombstones[key] = time.Now().UTC()
	return nil
}

// lookup returns the stored job. Callers must hold m.mu.
func (m *Store) lookup(jobID id.JobID) (*job.Job, error) {
	key := jobID.String()
	j, ok := m.jobs[key]
	if !ok {
		if _, gone := m.tombstones[key]; gone {
			return nil, processes.ErrGone
		}
		return nil, processes.ErrJobNotFound
	}
	return j, nil
}

func matches(j *job.Job, status job.Status, processID string) bool {
	if status != "" && j.Status != status {
		return false
	}
	if processID != "" && j.ProcessID != processID {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Result Store
// ──────────────────────────────────────────────────

// PutResults stores outputs for a job exactly once. Outputs are kept
// encoded so callers cannot mutate them after the write.
func (m *Store) PutResults(_ context.Context, jobID id.JobID, outputs result.Outputs) error {
	b, err := result.Encode(outputs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, gone := m.tombstones[key]; gone {
		return processes.ErrGone
	}
	if _, exists := m.results[key]; exists {
		return processes.ErrResultsExist
	}
	m.results[key] = b
	return nil
}

// GetResults returns the outputs stored for a job.
func (m *Store) GetResults(_ context.Context, jobID id.JobID) (result.Outputs, error) {
	m.mu.RLock()
	b, ok := m.results[jobID.String()]
	m.mu.RUnlock()

	if !ok {
		return nil, processes.ErrResultsNotFound
	}
	return result.Decode(b)
}

// DeleteResults removes outputs stored for a job.
func (m *Store) DeleteResults(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.results, jobID.String())
	return nil
}
