package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:processes_jobs"`

	ID             string     `bun:"id,pk"`
	ProcessID      string     `bun:"process_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Mode           string     `bun:"mode,notnull"`
	Inputs         string     `bun:"inputs,nullzero"`
	Progress       *int       `bun:"progress"`
	Message        string     `bun:"message,notnull"`
	ErrorKind      string     `bun:"error_kind,nullzero"`
	ErrorMessage   string     `bun:"error_message,nullzero"`
	WorkerID       string     `bun:"worker_id,nullzero"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	StartedAt      *time.Time `bun:"started_at"`
	FinishedAt     *time.Time `bun:"finished_at"`
	Version        int64      `bun:"version,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

// transitionColumns are the columns a state transition may change.
var transitionColumns = []string{
	"status", "progress", "message", "error_kind", "error_message",
	"worker_id", "lease_expires_at", "started_at", "finished_at",
	"version", "updated_at",
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
		LeaseExpiresAt: utcPtr(j.LeaseExpiresAt),
		StartedAt:      utcPtr(j.StartedAt),
		FinishedAt:     utcPtr(j.FinishedAt),
		Version:        j.Version,
		CreatedAt:      j.CreatedAt.UTC(),
		UpdatedAt:      j.UpdatedAt.UTC(),
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
		return nil, fmt.Errorf("processes/bun: parse job id %q: %w", m.ID, err)
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
		if parsedWorker, workerErr := id.ParseWorkerID(m.WorkerID); workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}
	return j, nil
}

// ── Result model ──────────────────────────────────────────────────

type resultModel struct {
	bun.BaseModel `bun:"table:processes_results"`

	JobID     string    `bun:"job_id,pk"`
	Outputs   string    `bun:"outputs,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// ── Tombstone model ───────────────────────────────────────────────

type tombstoneModel struct {
	bun.BaseModel `bun:"table:processes_tombstones"`

	JobID      string    `bun:"job_id,pk"`
	ExpungedAt time.Time `bun:"expunged_at,notnull"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
