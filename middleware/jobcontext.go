package middleware

import (
	"context"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

// JobContext returns middleware that makes the executing job visible to the
// executor: process.JobIDFromContext returns its ID and
// process.ReportProgress forwards to progress.
func JobContext(progress process.ProgressFunc) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		return next(process.WithJob(ctx, j.ID, progress))
	}
}
