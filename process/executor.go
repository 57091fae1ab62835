package process

import (
	"context"
	"encoding/json"

	"github.com/xraph/processes/id"
	"github.com/xraph/processes/result"
)

// Executor performs the work of a process. It must return promptly once
// ctx is done; a result returned after cancellation is discarded.
type Executor interface {
	Execute(ctx context.Context, inputs json.RawMessage) (result.Outputs, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inputs json.RawMessage) (result.Outputs, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inputs json.RawMessage) (result.Outputs, error) {
	return f(ctx, inputs)
}

// ProgressFunc receives progress reports from a running executor.
type ProgressFunc func(ctx context.Context, percent int, message string)

type ctxKey int

const (
	jobIDKey ctxKey = iota
	progressKey
)

// WithJob attaches the executing job's ID and a progress sink to ctx.
func WithJob(ctx context.Context, jobID id.JobID, progress ProgressFunc) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	if progress != nil {
		ctx = context.WithValue(ctx, progressKey, progress)
	}
	return ctx
}

// JobIDFromContext returns the ID of the job being executed.
func JobIDFromContext(ctx context.Context) (id.JobID, bool) {
	v, ok := ctx.Value(jobIDKey).(id.JobID)
	return v, ok
}

// ReportProgress records advisory progress for the job being executed.
// Percent is clamped to 0–100. It is a no-op outside an execution.
func ReportProgress(ctx context.Context, percent int, message string) {
	fn, ok := ctx.Value(progressKey).(ProgressFunc)
	if !ok {
		return
	}
	fn(ctx, min(max(percent, 0), 100), message)
}
