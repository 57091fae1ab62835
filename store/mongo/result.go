package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

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

	gone, err := s.db.Collection(colJobs).CountDocuments(ctx, bson.M{"_id": jobID.String(), "expunged": true})
	if err != nil {
		return fmt.Errorf("processes/mongo: check tombstone: %w", err)
	}
	if gone > 0 {
		return processes.ErrGone
	}

	m := &resultModel{JobID: jobID.String(), Outputs: string(b), CreatedAt: now()}
	if _, err := s.db.Collection(colResults).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return processes.ErrResultsExist
		}
		return fmt.Errorf("processes/mongo: put results: %w", err)
	}
	return nil
}

// GetResults returns the outputs stored for a job.
func (s *Store) GetResults(ctx context.Context, jobID id.JobID) (result.Outputs, error) {
	var m resultModel
	err := s.db.Collection(colResults).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, processes.ErrResultsNotFound
		}
		return nil, fmt.Errorf("processes/mongo: get results: %w", err)
	}
	return result.Decode([]byte(m.Outputs))
}

// DeleteResults removes outputs stored for a job.
func (s *Store) DeleteResults(ctx context.Context, jobID id.JobID) error {
	if _, err := s.db.Collection(colResults).DeleteOne(ctx, bson.M{"_id": jobID.String()}); err != nil {
		return fmt.Errorf("processes/mongo: delete results: %w", err)
	}
	return nil
}
