package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// errNotTerminal aborts an expunge transaction whose job is missing or
// still active.
var errNotTerminal = errors.New("job not terminal")

var terminalStatuses = []string{
	string(job.StatusSuccessful),
	string(job.StatusFailed),
	string(job.StatusDismissed),
}

// CreateJob persists a new job. A tombstone keeps its _id, so IDs of
// expunged jobs are never reused.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if isDuplicateKey(err) {
			return processes.ErrJobAlreadyExists
		}
		return fmt.Errorf("processes/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return fromJobModel(m)
}

// ListJobs returns jobs ordered by creation time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter(opts.Status, opts.ProcessID), findOpts)
	if err != nil {
		return nil, fmt.Errorf("processes/mongo: list jobs: %w", err)
	}
	return decodeJobs(ctx, cursor)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := s.db.Collection(colJobs).CountDocuments(ctx, filter(opts.Status, opts.ProcessID))
	if err != nil {
		return 0, fmt.Errorf("processes/mongo: count jobs: %w", err)
	}
	return n, nil
}

// TransitionJob replaces the job document if it still has status from and
// the version j was read at.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from job.Status) error {
	m := toJobModel(j)
	m.Version = j.Version + 1

	res, err := s.db.Collection(colJobs).ReplaceOne(ctx, bson.M{
		"_id":     m.ID,
		"status":  string(from),
		"version": j.Version,
	}, m)
	if err != nil {
		return fmt.Errorf("processes/mongo: transition job: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.conflict(ctx, j.ID)
	}
	j.Version++
	return nil
}

// RenewLease extends the lease of a running job held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx, bson.M{
		"_id":       jobID.String(),
		"status":    string(job.StatusRunning),
		"worker_id": workerID.String(),
	}, bson.M{"$set": bson.M{"lease_expires_at": until.UTC()}})
	if err != nil {
		return fmt.Errorf("processes/mongo: renew lease: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.conflict(ctx, jobID)
	}
	return nil
}

// UpdateProgress records advisory progress for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, progress int, message string) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx, bson.M{
		"_id":    jobID.String(),
		"status": string(job.StatusRunning),
	}, bson.M{"$set": bson.M{
		"progress":   progress,
		"message":    message,
		"updated_at": now(),
	}})
	if err != nil {
		return fmt.Errorf("processes/mongo: update progress: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.conflict(ctx, jobID)
	}
	return nil
}

// ListExpired returns terminal jobs that finished before the cutoff,
// oldest first.
func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*job.Job, error) {
	return s.listBefore(ctx, bson.M{
		"status":      bson.M{"$in": terminalStatuses},
		"finished_at": bson.M{"$lt": before.UTC()},
	}, "finished_at", limit)
}

// ListOrphaned returns running jobs whose lease expired before now.
func (s *Store) ListOrphaned(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	return s.listBefore(ctx, bson.M{
		"status":           string(job.StatusRunning),
		"lease_expires_at": bson.M{"$lt": now.UTC()},
	}, "lease_expires_at", limit)
}

// ExpungeJob replaces a terminal job with a tombstone and removes its
// results in one transaction. Transactions need a replica set.
func (s *Store) ExpungeJob(ctx context.Context, jobID id.JobID) error {
	key := jobID.String()
	t := now()
	tomb := &jobModel{ID: key, Expunged: true, ExpungedAt: &t, CreatedAt: t, UpdatedAt: t}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("processes/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		res, err := s.db.Collection(colJobs).ReplaceOne(ctx, bson.M{
			"_id":    key,
			"status": bson.M{"$in": terminalStatuses},
		}, tomb)
		if err != nil {
			return nil, fmt.Errorf("expunge job: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, errNotTerminal
		}
		if _, err := s.db.Collection(colResults).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
			return nil, fmt.Errorf("delete results: %w", err)
		}
		return nil, nil
	})
	if errors.Is(err, errNotTerminal) {
		return s.conflict(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("processes/mongo: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// find loads a job document, mapping tombstones to ErrGone.
func (s *Store) find(ctx context.Context, jobID id.JobID) (*jobModel, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, processes.ErrJobNotFound
		}
		return nil, fmt.Errorf("processes/mongo: get job: %w", err)
	}
	if m.Expunged {
		return nil, processes.ErrGone
	}
	return &m, nil
}

// conflict explains why a filtered write matched no document.
func (s *Store) conflict(ctx context.Context, jobID id.JobID) error {
	m, err := s.find(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s at version %d", processes.ErrConflict, jobID, m.Status, m.Version)
}

func (s *Store) listBefore(ctx context.Context, f bson.M, sortKey string, limit int) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: sortKey, Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colJobs).Find(ctx, f, findOpts)
	if err != nil {
		return nil, fmt.Errorf("processes/mongo: list by %s: %w", sortKey, err)
	}
	return decodeJobs(ctx, cursor)
}

// filter builds a query that never matches tombstones.
func filter(status job.Status, processID string) bson.M {
	f := bson.M{"expunged": bson.M{"$ne": true}}
	if status != "" {
		f["status"] = string(status)
	}
	if processID != "" {
		f["process_id"] = processID
	}
	return f
}

func decodeJobs(ctx context.Context, cursor *mongod.Cursor) ([]*job.Job, error) {
	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("processes/mongo: decode jobs: %w", err)
	}
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
