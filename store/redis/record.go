package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// jobRecord is the msgpack form of a job.
type jobRecord struct {
	ID             string     `msgpack:"id"`
	ProcessID      string     `msgpack:"process_id"`
	Status         string     `msgpack:"status"`
	Mode           string     `msgpack:"mode,omitempty"`
	Inputs         []byte     `msgpack:"inputs,omitempty"`
	Progress       *int       `msgpack:"progress,omitempty"`
	Message        string     `msgpack:"message,omitempty"`
	ErrorKind      string     `msgpack:"error_kind,omitempty"`
	ErrorMessage   string     `msgpack:"error_message,omitempty"`
	WorkerID       string     `msgpack:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time `msgpack:"lease_expires_at,omitempty"`
	StartedAt      *time.Time `msgpack:"started_at,omitempty"`
	FinishedAt     *time.Time `msgpack:"finished_at,omitempty"`
	Version        int64      `msgpack:"version"`
	CreatedAt      time.Time  `msgpack:"created_at"`
	UpdatedAt      time.Time  `msgpack:"updated_at"`
}

func encodeJob(j *job.Job) ([]byte, error) {
	r := jobRecord{
		ID:             j.ID.String(),
		ProcessID:      j.ProcessID,
		Status:         string(j.Status),
		Mode:           string(j.Mode),
		Inputs:         j.Inputs,
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
		r.ErrorKind = string(j.Error.Kind)
		r.ErrorMessage = j.Error.Message
	}
	if !j.WorkerID.IsNil() {
		r.WorkerID = j.WorkerID.String()
	}
	b, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("processes/redis: encode job: %w", err)
	}
	return b, nil
}

func decodeJob(b []byte) (*job.Job, error) {
	var r jobRecord
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("processes/redis: decode job: %w", err)
	}

	parsedID, err := id.ParseJobID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("processes/redis: parse job id %q: %w", r.ID, err)
	}

	j := &job.Job{
		Entity:         processes.Entity{CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()},
		ID:             parsedID,
		ProcessID:      r.ProcessID,
		Status:         job.Status(r.Status),
		Mode:           job.Mode(r.Mode),
		Progress:       r.Progress,
		Message:        r.Message,
		LeaseExpiresAt: utcPtr(r.LeaseExpiresAt),
		StartedAt:      utcPtr(r.StartedAt),
		FinishedAt:     utcPtr(r.FinishedAt),
		Version:        r.Version,
	}
	if len(r.Inputs) > 0 {
		j.Inputs = json.RawMessage(r.Inputs)
	}
	if r.ErrorKind != "" {
		j.Error = &job.ErrorInfo{Kind: job.ErrorKind(r.ErrorKind), Message: r.ErrorMessage}
	}
	if r.WorkerID != "" {
		if w, werr := id.ParseWorkerID(r.WorkerID); werr == nil {
			j.WorkerID = w
		}
	}
	return j, nil
}

// score maps a time to a Sorted Set score. Microseconds stay exact in a
// float64 for the foreseeable future.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
