package process

import (
	"encoding/json"
	"time"

	"github.com/xraph/processes/job"
)

// JobControl names an execution capability a process advertises.
type JobControl string

const (
	// SyncExecute allows execution on the request path.
	SyncExecute JobControl = "sync-execute"
	// AsyncExecute allows queued execution.
	AsyncExecute JobControl = "async-execute"
	// Dismiss allows clients to cancel jobs of the process.
	Dismiss JobControl = "dismiss"
)

// InputDescription declares one input of a process.
type InputDescription struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// Schema is a JSON Schema for the input value. Nil accepts any value.
	Schema json.RawMessage `json:"schema,omitempty"`
	// MinOccurs of 1 or more makes the input required.
	MinOccurs int `json:"minOccurs"`
}

// OutputDescription declares one output of a process.
type OutputDescription struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Description is the externally visible definition of a process.
type Description struct {
	ID                string                       `json:"id"`
	Title             string                       `json:"title,omitempty"`
	Description       string                       `json:"description,omitempty"`
	Version           string                       `json:"version"`
	JobControlOptions []JobControl                 `json:"jobControlOptions,omitempty"`
	Inputs            map[string]InputDescription  `json:"inputs,omitempty"`
	Outputs           map[string]OutputDescription `json:"outputs,omitempty"`

	// MaxConcurrency caps running jobs of this process across the pool.
	// Zero means unlimited.
	MaxConcurrency int `json:"-"`
	// RateLimit caps job starts per second. Zero means unlimited.
	RateLimit float64 `json:"-"`
	// RateBurst is the token bucket size for RateLimit. Defaults to 1.
	RateBurst int `json:"-"`
	// Timeout bounds a single execution. Zero means unlimited.
	Timeout time.Duration `json:"-"`
}

// Allows reports whether the process advertises the control option.
// A process that advertises no options allows both execution modes and
// dismissal.
func (d *Description) Allows(c JobControl) bool {
	if len(d.JobControlOptions) == 0 {
		return true
	}
	for _, o := range d.JobControlOptions {
		if o == c {
			return true
		}
	}
	return false
}

// ResolveMode returns the execution mode for a request that prefers pref.
// The preference wins unless the process only supports the other mode.
func (d *Description) ResolveMode(pref job.Mode) job.Mode {
	switch {
	case pref == job.ModeAsync && !d.Allows(AsyncExecute) && d.Allows(SyncExecute):
		return job.ModeSync
	case pref != job.ModeAsync && !d.Allows(SyncExecute) && d.Allows(AsyncExecute):
		return job.ModeAsync
	case pref == "":
		return job.ModeSync
	default:
		return pref
	}
}
