package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// Logging returns middleware that logs execution start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		logger.Info("execution started",
			slog.String("process_id", j.ProcessID),
			slog.String("job_id", j.ID.String()),
			slog.String("mode", string(j.Mode)),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("execution failed",
				slog.String("process_id", j.ProcessID),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("execution completed",
				slog.String("process_id", j.ProcessID),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
