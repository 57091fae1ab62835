package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/result"
)

// PutResults stores outputs for a job exactly once.
func (s *Store) PutResults(ctx context.Context, jobID id.JobID, outputs result.Outputs) error {
	b, err := result.Encode(outputs)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO processes_results (job_id, outputs) VALUES ($1, $2)`,
		jobID.String(), b,
	)
	if err != nil {
		switch {
		case isDuplicateKey(err):
			return processes.ErrResultsExist
		case isForeignKey(err):
			return s.missing(ctx, jobID)
		}
		return fmt.Errorf("processes/postgres: put results: %w", err)
	}
	return nil
}

// GetResults returns the outputs stored for a job.
func (s *Store) GetResults(ctx context.Context, jobID id.JobID) (result.Outputs, error) {
	var b []byte
	err := s.pool.QueryRow(ctx,
		`SELECT outputs FROM processes_results WHERE job_id = $1`,
		jobID.String(),
	).Scan(&b)
	if err != nil {
		if isNoRows(err) {
			return nil, processes.ErrResultsNotFound
		}
		return nil, fmt.Errorf("processes/postgres: get results: %w", err)
	}
	return result.Decode(b)
}

// DeleteResults removes outputs stored for a job.
func (s *Store) DeleteResults(ctx context.Context, jobID id.JobID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM processes_results WHERE job_id = $1`, jobID.String()); err != nil {
		return fmt.Errorf("processes/postgres: delete results: %w", err)
	}
	return nil
}
