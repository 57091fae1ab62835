// Package builtin provides reference processes used for smoke tests and
// conformance checks of the job lifecycle.
//
//   - noop: returns immediately with no outputs
//   - echo: returns its inputs as outputs
//   - sleep: waits for the requested duration, honoring cancellation
//   - fail: always fails with the given message
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

// Noop returns immediately with no outputs.
var Noop = process.NewDefinition(process.Description{
	ID:          "noop",
	Title:       "No operation",
	Description: "Completes immediately without producing outputs.",
	Version:     "1.0.0",
	JobControlOptions: []process.JobControl{
		process.SyncExecute, process.AsyncExecute, process.Dismiss,
	},
}, func(_ context.Context, _ struct{}) (result.Outputs, error) {
	return result.Outputs{}, nil
})

// EchoInput is the input of the echo process.
type EchoInput struct {
	Message string `json:"message"`
}

// Echo returns its message input as output.
var Echo = process.NewDefinition(process.Description{
	ID:      "echo",
	Title:   "Echo",
	Version: "1.0.0",
	Inputs: map[string]process.InputDescription{
		"message": {
			Title:     "Message to echo",
			Schema:    json.RawMessage(`{"type":"string"}`),
			MinOccurs: 1,
		},
	},
	Outputs: map[string]process.OutputDescription{
		"message": {Schema: json.RawMessage(`{"type":"string"}`)},
	},
}, func(_ context.Context, in EchoInput) (result.Outputs, error) {
	return result.Outputs{"message": in.Message}, nil
})

// SleepInput is the input of the sleep process.
type SleepInput struct {
	// Milliseconds to wait.
	Milliseconds int `json:"milliseconds"`
	// Steps splits the wait into progress checkpoints. Defaults to 10.
	Steps int `json:"steps"`
}

// Sleep waits for the requested duration, reporting progress at each step
// and stopping early when the job is cancelled.
var Sleep = process.NewDefinition(process.Description{
	ID:          "sleep",
	Title:       "Sleep",
	Description: "Waits for the given number of milliseconds.",
	Version:     "1.0.0",
	Inputs: map[string]process.InputDescription{
		"milliseconds": {Schema: json.RawMessage(`{"type":"integer","minimum":0}`), MinOccurs: 1},
		"steps":        {Schema: json.RawMessage(`{"type":"integer","minimum":1,"maximum":100}`)},
	},
}, func(ctx context.Context, in SleepInput) (result.Outputs, error) {
	steps := in.Steps
	if steps <= 0 {
		steps = 10
	}
	step := time.Duration(in.Milliseconds) * time.Millisecond / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(step):
		}
		process.ReportProgress(ctx, i*100/steps, "sleeping")
	}
	return result.Outputs{"slept": in.Milliseconds}, nil
})

// FailInput is the input of the fail process.
type FailInput struct {
	Message string `json:"message"`
}

// Fail always returns an execution error.
var Fail = process.NewDefinition(process.Description{
	ID:      "fail",
	Title:   "Fail",
	Version: "1.0.0",
	Inputs: map[string]process.InputDescription{
		"message": {Schema: json.RawMessage(`{"type":"string"}`)},
	},
}, func(_ context.Context, in FailInput) (result.Outputs, error) {
	msg := in.Message
	if msg == "" {
		msg = "process failed"
	}
	return nil, errors.New(msg)
})

// Register adds all builtin processes to r.
func Register(r *process.Registry) error {
	return errors.Join(
		process.RegisterDefinition(r, Noop),
		process.RegisterDefinition(r, Echo),
		process.RegisterDefinition(r, Sleep),
		process.RegisterDefinition(r, Fail),
	)
}
