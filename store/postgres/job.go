package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

const jobColumns = `
	id, process_id, status, mode, inputs, progress, message,
	error_kind, error_message, worker_id, lease_expires_at,
	started_at, finished_at, version, created_at, updated_at`

const terminalStatuses = `('successful', 'failed', 'dismissed')`

// CreateJob persists a new job. IDs of expunged jobs are never reused.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	kind, msg := errorColumns(j)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var gone bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM processes_tombstones WHERE job_id = $1)`,
			j.ID.String(),
		).Scan(&gone)
		if err != nil {
			return fmt.Errorf("processes/postgres: check tombstone: %w", err)
		}
		if gone {
			return processes.ErrJobAlreadyExists
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO processes_jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			j.ID.String(), j.ProcessID, string(j.Status), string(j.Mode), rawInputs(j.Inputs),
			j.Progress, j.Message, kind, msg, workerColumn(j.WorkerID), j.LeaseExpiresAt,
			j.StartedAt, j.FinishedAt, j.Version, j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return processes.ErrJobAlreadyExists
			}
			return fmt.Errorf("processes/postgres: create job: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processes_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, s.missing(ctx, jobID)
		}
		return nil, fmt.Errorf("processes/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs ordered by creation time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	where, args := filters(opts.Status, opts.ProcessID)
	query := `SELECT ` + jobColumns + ` FROM processes_jobs` + where + ` ORDER BY created_at ASC, id ASC`

	argIdx := len(args) + 1
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limitArg(opts.Limit), opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("processes/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	where, args := filters(opts.Status, opts.ProcessID)

	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processes_jobs`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("processes/postgres: count jobs: %w", err)
	}
	return count, nil
}

// TransitionJob writes j if the stored row still has status from and the
// version j was read at.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from job.Status) error {
	kind, msg := errorColumns(j)
	tag, err := s.pool.Exec(ctx, `
		UPDATE processes_jobs SET
			status = $4, progress = $5, message = $6,
			error_kind = $7, error_message = $8,
			worker_id = $9, lease_expires_at = $10,
			started_at = $11, finished_at = $12,
			updated_at = $13, version = version + 1
		WHERE id = $1 AND status = $2 AND version = $3`,
		j.ID.String(), string(from), j.Version,
		string(j.Status), j.Progress, j.Message,
		kind, msg,
		workerColumn(j.WorkerID), j.LeaseExpiresAt,
		j.StartedAt, j.FinishedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("processes/postgres: transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflict(ctx, j.ID)
	}
	j.Version++
	return nil
}

// RenewLease extends the lease of a running job held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processes_jobs SET lease_expires_at = $3
		WHERE id = $1 AND status = 'running' AND worker_id = $2`,
		jobID.String(), workerID.String(), until,
	)
	if err != nil {
		return fmt.Errorf("processes/postgres: renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflict(ctx, jobID)
	}
	return nil
}

// UpdateProgress records advisory progress for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, progress int, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processes_jobs SET progress = $2, message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		jobID.String(), progress, message,
	)
	if err != nil {
		return fmt.Errorf("processes/postgres: update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflict(ctx, jobID)
	}
	return nil
}

// ListExpired returns terminal jobs that finished before the cutoff,
// oldest first.
func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processes_jobs
		WHERE status IN `+terminalStatuses+` AND finished_at < $1
		ORDER BY finished_at ASC
		LIMIT $2`,
		before, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("processes/postgres: list expired: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListOrphaned returns running jobs whose lease expired before now.
func (s *Store) ListOrphaned(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processes_jobs
		WHERE status = 'running' AND lease_expires_at < $1
		ORDER BY lease_expires_at ASC
		LIMIT $2`,
		now, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("processes/postgres: list orphaned: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ExpungeJob deletes a terminal job and its results in one transaction
// and records a tombstone.
func (s *Store) ExpungeJob(ctx context.Context, jobID id.JobID) error {
	key := jobID.String()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM processes_jobs WHERE id = $1 FOR UPDATE`, key,
		).Scan(&status)
		if err != nil {
			if isNoRows(err) {
				return s.missing(ctx, jobID)
			}
			return fmt.Errorf("processes/postgres: lock job: %w", err)
		}
		if !job.Status(status).IsTerminal() {
			return fmt.Errorf("%w: job %s is %s", processes.ErrConflict, key, status)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM processes_results WHERE job_id = $1`, key); err != nil {
			return fmt.Errorf("processes/postgres: delete results: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM processes_jobs WHERE id = $1`, key); err != nil {
			return fmt.Errorf("processes/postgres: delete job: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO processes_tombstones (job_id) VALUES ($1)
			ON CONFLICT (job_id) DO NOTHING`, key,
		); err != nil {
			return fmt.Errorf("processes/postgres: record tombstone: %w", err)
		}
		return nil
	})
}

// missing reports whether an absent job was expunged or never existed.
func (s *Store) missing(ctx context.Context, jobID id.JobID) error {
	var gone bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processes_tombstones WHERE job_id = $1)`,
		jobID.String(),
	).Scan(&gone)
	if err != nil {
		return fmt.Errorf("processes/postgres: check tombstone: %w", err)
	}
	if gone {
		return processes.ErrGone
	}
	return processes.ErrJobNotFound
}

// conflict explains why a conditional update matched no row.
func (s *Store) conflict(ctx context.Context, jobID id.JobID) error {
	var (
		status  string
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status, version FROM processes_jobs WHERE id = $1`,
		jobID.String(),
	).Scan(&status, &version)
	if err != nil {
		if isNoRows(err) {
			return s.missing(ctx, jobID)
		}
		return fmt.Errorf("processes/postgres: read job state: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s at version %d", processes.ErrConflict, jobID, status, version)
}

// filters builds the WHERE clause shared by list and count queries.
func filters(status job.Status, processID string) (string, []any) {
	var (
		where string
		args  []any
	)
	if status != "" {
		args = append(args, string(status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if processID != "" {
		args = append(args, processID)
		where += fmt.Sprintf(" AND process_id = $%d", len(args))
	}
	if where == "" {
		return "", nil
	}
	return " WHERE 1=1" + where, args
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		statusStr string
		modeStr   string
		inputs    []byte
		errKind   *string
		errMsg    *string
		workerStr *string
	)
	err := row.Scan(
		&idStr, &j.ProcessID, &statusStr, &modeStr, &inputs, &j.Progress, &j.Message,
		&errKind, &errMsg, &workerStr, &j.LeaseExpiresAt,
		&j.StartedAt, &j.FinishedAt, &j.Version, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("processes/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	j.Status = job.Status(statusStr)
	j.Mode = job.Mode(modeStr)
	if len(inputs) > 0 {
		j.Inputs = json.RawMessage(inputs)
	}
	if errKind != nil {
		j.Error = &job.ErrorInfo{Kind: job.ErrorKind(*errKind)}
		if errMsg != nil {
			j.Error.Message = *errMsg
		}
	}
	if workerStr != nil && *workerStr != "" {
		if parsedWorker, workerErr := id.ParseWorkerID(*workerStr); workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}
	normalizeTimes(&j)

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("processes/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("processes/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

func errorColumns(j *job.Job) (*string, *string) {
	if j.Error == nil {
		return nil, nil
	}
	kind := string(j.Error.Kind)
	msg := j.Error.Message
	return &kind, &msg
}

func workerColumn(w id.WorkerID) *string {
	if w.IsNil() {
		return nil
	}
	s := w.String()
	return &s
}

func rawInputs(in json.RawMessage) []byte {
	if len(in) == 0 {
		return nil
	}
	return in
}

func normalizeTimes(j *job.Job) {
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	for _, t := range []**time.Time{&j.StartedAt, &j.FinishedAt, &j.LeaseExpiresAt} {
		if *t != nil {
			u := (*t).UTC()
			*t = &u
		}
	}
}
