package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// ── Job model ─────────────────────────────────────────────────────

// jobModel is a job document. An expunged job keeps only its _id and the
// expunged marker.
type jobModel struct {
	ID             string     `bson:"_id"`
	ProcessID      string     `bson:"process_id,omitempty"`
	Status         string     `bson:"status,omitempty"`
	Mode           string     `bson:"mode,omitempty"`
	Inputs         string     `bson:"inputs,omitempty"`
	Progress       *int       `bson:"progress,omitempty"`
	Message        string     `bson:"message,omitempty"`
	ErrorKind      string     `bson:"error_kind,omitempty"`
	ErrorMessage   string     `bson:"error_message,omitempty"`
	WorkerID       string     `bson:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at,omitempty"`
	StartedAt      *time.Time `bson:"started_at,omitempty"`
	FinishedAt     *time.Time `bson:"finished_at,omitempty"`
	Version        int64      `bson:"version"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
	Expunged       bool       `bson:"expunged,omitempty"`
	ExpungedAt     *time.Time `bson:"expunged_at,omitempty"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:             j.ID.String(),
		ProcessID:      j.ProcessID,
		Status:         string(j.Status),
		Mode:           string(j.Mode),
		Inputs:         string(j.Inputs),
		Progress:       j.Progress,
		Message:        j.Message,
		LeaseExpiresAt: j.LeaseExpiresAt,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		Version:        j.Version,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Error != nil {
		m.ErrorKind = string(j.Error.Kind)
		m.ErrorMessage = j.Error.Message
	}
	if !j.WorkerID.IsNil() {
		m.WorkerID = j.WorkerID.String()
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("processes/mongo: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: processes.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             parsedID,
		ProcessID:      m.ProcessID,
		Status:         job.Status(m.Status),
		Mode:           job.Mode(m.Mode),
		Progress:       m.Progress,
		Message:        m.Message,
		LeaseExpiresAt: utcPtr(m.LeaseExpiresAt),
		StartedAt:      utcPtr(m.StartedAt),
		FinishedAt:     utcPtr(m.FinishedAt),
		Version:        m.Version,
	}
	if m.Inputs != "" {
		j.Inputs = json.RawMessage(m.Inputs)
	}
	if m.ErrorKind != "" {
		j.Error = &job.ErrorInfo{Kind: job.ErrorKind(m.ErrorKind), Message: m.ErrorMessage}
	}
	if m.WorkerID != "" {
		if w, werr := id.ParseWorkerID(m.WorkerID); werr == nil {
			j.WorkerID = w
		}
	}
	return j, nil
}

// ── Result model ──────────────────────────────────────────────────

type resultModel struct {
	JobID     string    `bson:"_id"`
	Outputs   string    `bson:"outputs"`
	CreatedAt time.Time `bson:"created_at"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
