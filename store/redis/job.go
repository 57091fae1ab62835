package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// CreateJob stores the job and adds it to the creation index.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	b, err := encodeJob(j)
	if err != nil {
		return err
	}

	return s.watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key, tombstoneKey(jID)).Result()
		if err != nil {
			return fmt.Errorf("processes/redis: create check exists: %w", err)
		}
		if n > 0 {
			return processes.ErrJobAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.ZAdd(ctx, jobsKey, goredis.Z{Score: score(j.CreatedAt), Member: jID})
			index(ctx, pipe, j)
			return nil
		})
		return err
	}, key, tombstoneKey(jID))
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	b, err := s.client.Get(ctx, jobKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, s.missing(ctx, s.client, jobID)
		}
		return nil, fmt.Errorf("processes/redis: get job: %w", err)
	}
	return decodeJob(b)
}

// ListJobs returns jobs ordered by creation time, then ID. Members with
// equal scores sort by ID, which matches that order.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	if opts.Status == "" && opts.ProcessID == "" {
		stop := int64(-1)
		if opts.Limit > 0 {
			stop = int64(opts.Offset + opts.Limit - 1)
		}
		ids, err := s.client.ZRange(ctx, jobsKey, int64(opts.Offset), stop).Result()
		if err != nil {
			return nil, fmt.Errorf("processes/redis: list jobs: %w", err)
		}
		return s.loadJobs(ctx, ids)
	}

	all, err := s.filtered(ctx, opts.Status, opts.ProcessID)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= len(all) {
		return []*job.Job{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	if opts.Status == "" && opts.ProcessID == "" {
		n, err := s.client.ZCard(ctx, jobsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("processes/redis: count jobs: %w", err)
		}
		return n, nil
	}
	all, err := s.filtered(ctx, opts.Status, opts.ProcessID)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// TransitionJob writes j if the stored job still has status from and the
// version j was read at.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from job.Status) error {
	key := jobKey(j.ID.String())

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		cur, err := s.read(ctx, tx, j.ID)
		if err != nil {
			return err
		}
		if cur.Status != from || cur.Version != j.Version {
			return fmt.Errorf("%w: job %s is %s at version %d", processes.ErrConflict, j.ID, cur.Status, cur.Version)
		}

		next := j.Clone()
		next.Version++
		b, err := encodeJob(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			index(ctx, pipe, next)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}
	j.Version++
	return nil
}

// RenewLease extends the lease of a running job held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	return s.update(ctx, jobID, func(cur *job.Job) error {
		if cur.Status != job.StatusRunning || cur.WorkerID.String() != workerID.String() {
			return fmt.Errorf("%w: job %s is not held by %s", processes.ErrConflict, jobID, workerID)
		}
		u := until.UTC()
		cur.LeaseExpiresAt = &u
		return nil
	})
}

// UpdateProgress records advisory progress for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, progress int, message string) error {
	return s.update(ctx, jobID, func(cur *job.Job) error {
		if cur.Status != job.StatusRunning {
			return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, jobID, cur.Status)
		}
		p := progress
		cur.Progress = &p
		cur.Message = message
		cur.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// ListExpired returns terminal jobs that finished before the cutoff,
// oldest first.
func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*job.Job, error) {
	return s.rangeBefore(ctx, finishedKey, before, limit)
}

// ListOrphaned returns running jobs whose lease expired before now.
func (s *Store) ListOrphaned(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	return s.rangeBefore(ctx, leasesKey, now, limit)
}

// ExpungeJob deletes a terminal job and its results atomically and
// records a tombstone.
func (s *Store) ExpungeJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	return s.watch(ctx, func(tx *goredis.Tx) error {
		cur, err := s.read(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !cur.Status.IsTerminal() {
			return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, jID, cur.Status)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key, resultKey(jID))
			pipe.ZRem(ctx, jobsKey, jID)
			pipe.ZRem(ctx, finishedKey, jID)
			pipe.ZRem(ctx, leasesKey, jID)
			pipe.Set(ctx, tombstoneKey(jID), time.Now().UTC().Format(time.RFC3339Nano), 0)
			return nil
		})
		return err
	}, key)
}

// ── Internal helpers ──────────────────────────────

// watch runs fn under WATCH on keys, retrying when a concurrent write
// touched them. fn re-reads and re-checks every precondition on each try.
func (s *Store) watch(ctx context.Context, fn func(tx *goredis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%w: too many concurrent writers on %v", processes.ErrConflict, keys)
}

// update applies mutate to the stored job without changing its version.
func (s *Store) update(ctx context.Context, jobID id.JobID, mutate func(*job.Job) error) error {
	key := jobKey(jobID.String())
	return s.watch(ctx, func(tx *goredis.Tx) error {
		cur, err := s.read(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := mutate(cur); err != nil {
			return err
		}
		b, err := encodeJob(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			index(ctx, pipe, cur)
			return nil
		})
		return err
	}, key)
}

// read loads a job inside a WATCH transaction.
func (s *Store) read(ctx context.Context, tx *goredis.Tx, jobID id.JobID) (*job.Job, error) {
	b, err := tx.Get(ctx, jobKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, s.missing(ctx, tx, jobID)
		}
		return nil, fmt.Errorf("processes/redis: read job: %w", err)
	}
	return decodeJob(b)
}

// missing reports whether an absent job was expunged or never existed.
func (s *Store) missing(ctx context.Context, c goredis.Cmdable, jobID id.JobID) error {
	n, err := c.Exists(ctx, tombstoneKey(jobID.String())).Result()
	if err != nil {
		return fmt.Errorf("processes/redis: check tombstone: %w", err)
	}
	if n > 0 {
		return processes.ErrGone
	}
	return processes.ErrJobNotFound
}

// index keeps the lease and retention Sorted Sets in step with j.
func index(ctx context.Context, pipe goredis.Pipeliner, j *job.Job) {
	jID := j.ID.String()
	if j.Status == job.StatusRunning && j.LeaseExpiresAt != nil {
		pipe.ZAdd(ctx, leasesKey, goredis.Z{Score: score(*j.LeaseExpiresAt), Member: jID})
	} else {
		pipe.ZRem(ctx, leasesKey, jID)
	}
	if j.Status.IsTerminal() && j.FinishedAt != nil {
		pipe.ZAdd(ctx, finishedKey, goredis.Z{Score: score(*j.FinishedAt), Member: jID})
	} else {
		pipe.ZRem(ctx, finishedKey, jID)
	}
}

// rangeBefore loads jobs from a time-scored index with scores below t.
func (s *Store) rangeBefore(ctx context.Context, indexKey string, t time.Time, limit int) ([]*job.Job, error) {
	by := &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(t), 'f', -1, 64),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, indexKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("processes/redis: range %s: %w", indexKey, err)
	}
	return s.loadJobs(ctx, ids)
}

// filtered loads every job in creation order and keeps those that match.
func (s *Store) filtered(ctx context.Context, status job.Status, processID string) ([]*job.Job, error) {
	ids, err := s.client.ZRange(ctx, jobsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("processes/redis: list job ids: %w", err)
	}
	all, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, j := range all {
		if status != "" && j.Status != status {
			continue
		}
		if processID != "" && j.ProcessID != processID {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// loadJobs fetches jobs by ID in order, skipping any expunged meanwhile.
func (s *Store) loadJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(ids))
	if len(ids) == 0 {
		return jobs, nil
	}

	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("processes/redis: load jobs: %w", err)
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		j, err := decodeJob([]byte(str))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
