// Package result defines the outputs of a successful job and the store that
// keeps them.
//
// Results are write-once: a job's outputs are stored exactly once, by the
// worker that moves the job to successful, and are read many times after.
// Results are removed only together with their job when the garbage
// collector expunges it.
package result

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/processes/id"
)

// Outputs maps output identifiers to their values. Values must be
// JSON-serializable; how they map to domain formats is up to the process.
type Outputs map[string]any

// Encode serializes outputs to JSON for storage.
func Encode(o Outputs) ([]byte, error) {
	if o == nil {
		o = Outputs{}
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}
	return b, nil
}

// Decode deserializes outputs previously produced by Encode.
func Decode(b []byte) (Outputs, error) {
	o := Outputs{}
	if len(b) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	return o, nil
}

// Store defines the persistence contract for job results.
type Store interface {
	// PutResults stores outputs for a job. It returns
	// processes.ErrResultsExist if outputs were already stored.
	PutResults(ctx context.Context, jobID id.JobID, outputs Outputs) error

	// GetResults returns stored outputs. It returns
	// processes.ErrResultsNotFound if none exist.
	GetResults(ctx context.Context, jobID id.JobID) (Outputs, error)

	// DeleteResults removes outputs written for a job that then lost the
	// race to become successful. Deleting missing results is not an error.
	DeleteResults(ctx context.Context, jobID id.JobID) error
}
