package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/result"
)

// PutResults stores outputs for a job exactly once. Outputs keep their
// JSON encoding so every backend returns the same value types.
func (s *Store) PutResults(ctx context.Context, jobID id.JobID, outputs result.Outputs) error {
	b, err := result.Encode(outputs)
	if err != nil {
		return err
	}

	jID := jobID.String()
	gone, err := s.client.Exists(ctx, tombstoneKey(jID)).Result()
	if err != nil {
		return fmt.Errorf("processes/redis: check tombstone: %w", err)
	}
	if gone > 0 {
		return processes.ErrGone
	}

	ok, err := s.client.SetNX(ctx, resultKey(jID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("processes/redis: put results: %w", err)
	}
	if !ok {
		return processes.ErrResultsExist
	}
	return nil
}

// GetResults returns the outputs stored for a job.
func (s *Store) GetResults(ctx context.Context, jobID id.JobID) (result.Outputs, error) {
	b, err := s.client.Get(ctx, resultKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, processes.ErrResultsNotFound
		}
		return nil, fmt.Errorf("processes/redis: get results: %w", err)
	}
	return result.Decode(b)
}

// DeleteResults removes outputs stored for a job.
func (s *Store) DeleteResults(ctx context.Context, jobID id.JobID) error {
	if err := s.client.Del(ctx, resultKey(jobID.String())).Err(); err != nil {
		return fmt.Errorf("processes/redis: delete results: %w", err)
	}
	return nil
}
