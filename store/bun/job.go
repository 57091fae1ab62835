package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

var terminalStatuses = []string{
	string(job.StatusSuccessful),
	string(job.StatusFailed),
	string(job.StatusDismissed),
}

// CreateJob persists a new job. IDs of expunged jobs are never reused.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	gone, err := s.tombstoned(ctx, s.db, j.ID)
	if err != nil {
		return err
	}
	if gone {
		return processes.ErrJobAlreadyExists
	}

	if _, err := s.db.NewInsert().Model(toJobModel(j)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return processes.ErrJobAlreadyExists
		}
		return fmt.Errorf("processes/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, s.missing(ctx, s.db, jobID)
		}
		return nil, fmt.Errorf("processes/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobs returns jobs ordered by creation time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)
	q = filter(q, opts.Status, opts.ProcessID)
	q = q.OrderExpr("created_at ASC, id ASC")

	if limit := pageLimit(opts.Limit, opts.Offset); limit > 0 {
		q = q.Limit(limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("processes/bun: list jobs: %w", err)
	}
	return convertJobs(models)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil))
	q = filter(q, opts.Status, opts.ProcessID)

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("processes/bun: count jobs: %w", err)
	}
	return int64(count), nil
}

// TransitionJob writes j if the stored row still has status from and the
// version j was read at.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from job.Status) error {
	m := toJobModel(j)
	m.Version = j.Version + 1

	res, err := s.db.NewUpdate().Model(m).
		Column(transitionColumns...).
		Where("id = ?", m.ID).
		Where("status = ?", string(from)).
		Where("version = ?", j.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("processes/bun: transition job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflict(ctx, s.db, j.ID)
	}
	j.Version++
	return nil
}

// RenewLease extends the lease of a running job held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	res, err := s.db.NewUpdate().Model((*jobModel)(nil)).
		Set("lease_expires_at = ?", until.UTC()).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusRunning)).
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("processes/bun: renew lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflict(ctx, s.db, jobID)
	}
	return nil
}

// UpdateProgress records advisory progress for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, progress int, message string) error {
	res, err := s.db.NewUpdate().Model((*jobModel)(nil)).
		Set("progress = ?", progress).
		Set("message = ?", message).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusRunning)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("processes/bun: update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflict(ctx, s.db, jobID)
	}
	return nil
}

// ListExpired returns terminal jobs that finished before the cutoff,
// oldest first.
func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status IN (?)", bun.In(terminalStatuses)).
		Where("finished_at < ?", before.UTC()).
		OrderExpr("finished_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("processes/bun: list expired: %w", err)
	}
	return convertJobs(models)
}

// ListOrphaned returns running jobs whose lease expired before now.
func (s *Store) ListOrphaned(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusRunning)).
		Where("lease_expires_at < ?", now.UTC()).
		OrderExpr("lease_expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("processes/bun: list orphaned: %w", err)
	}
	return convertJobs(models)
}

// ExpungeJob deletes a terminal job and its results in one transaction
// and records a tombstone.
func (s *Store) ExpungeJob(ctx context.Context, jobID id.JobID) error {
	key := jobID.String()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*jobModel)(nil)).
			Where("id = ?", key).
			Where("status IN (?)", bun.In(terminalStatuses)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("processes/bun: delete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.conflict(ctx, tx, jobID)
		}

		if _, err := tx.NewDelete().Model((*resultModel)(nil)).Where("job_id = ?", key).Exec(ctx); err != nil {
			return fmt.Errorf("processes/bun: delete results: %w", err)
		}

		tomb := &tombstoneModel{JobID: key, ExpungedAt: time.Now().UTC()}
		if _, err := tx.NewInsert().Model(tomb).On("CONFLICT (job_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("processes/bun: record tombstone: %w", err)
		}
		return nil
	})
}

func (s *Store) tombstoned(ctx context.Context, db bun.IDB, jobID id.JobID) (bool, error) {
	gone, err := db.NewSelect().Model((*tombstoneModel)(nil)).
		Where("job_id = ?", jobID.String()).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("processes/bun: check tombstone: %w", err)
	}
	return gone, nil
}

// missing reports whether an absent job was expunged or never existed.
func (s *Store) missing(ctx context.Context, db bun.IDB, jobID id.JobID) error {
	gone, err := s.tombstoned(ctx, db, jobID)
	if err != nil {
		return err
	}
	if gone {
		return processes.ErrGone
	}
	return processes.ErrJobNotFound
}

// conflict explains why a conditional write matched no row.
func (s *Store) conflict(ctx context.Context, db bun.IDB, jobID id.JobID) error {
	m := new(jobModel)
	err := db.NewSelect().Model(m).
		Column("status", "version").
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return s.missing(ctx, db, jobID)
		}
		return fmt.Errorf("processes/bun: read job state: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s at version %d", processes.ErrConflict, jobID, m.Status, m.Version)
}

func filter(q *bun.SelectQuery, status job.Status, processID string) *bun.SelectQuery {
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if processID != "" {
		q = q.Where("process_id = ?", processID)
	}
	return q
}

func convertJobs(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
