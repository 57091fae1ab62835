package bunstore

import (
	"context"
	"fmt"
	"time"

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

	gone, err := s.tombstoned(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	if gone {
		return processes.ErrGone
	}

	m := &resultModel{JobID: jobID.String(), Outputs: string(b), CreatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return processes.ErrResultsExist
		}
		return fmt.Errorf("processes/bun: put results: %w", err)
	}
	return nil
}

// GetResults returns the outputs stored for a job.
func (s *Store) GetResults(ctx context.Context, jobID id.JobID) (result.Outputs, error) {
	m := new(resultModel)
	err := s.db.NewSelect().Model(m).
		Where("job_id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, processes.ErrResultsNotFound
		}
		return nil, fmt.Errorf("processes/bun: get results: %w", err)
	}
	return result.Decode([]byte(m.Outputs))
}

// DeleteResults removes outputs stored for a job.
func (s *Store) DeleteResults(ctx context.Context, jobID id.JobID) error {
	_, err := s.db.NewDelete().Model((*resultModel)(nil)).
		Where("job_id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("processes/bun: delete results: %w", err)
	}
	return nil
}
