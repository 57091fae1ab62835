package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// TimeoutFunc returns the execution deadline for a process. Zero means none.
type TimeoutFunc func(processID string) time.Duration

// Timeout returns middleware that enforces a per-process execution deadline.
// When the deadline is exceeded the context is cancelled and the executor
// should return context.DeadlineExceeded, which the worker records as a
// timeout failure.
func Timeout(lookup TimeoutFunc, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		if d := lookup(j.ProcessID); d > 0 {
			logger.Debug("execution timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
