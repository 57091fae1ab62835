// Package middleware provides composable middleware for process execution.
//
// A [Middleware] is a function that wraps a process executor. Middleware
// are composed into a chain using [Chain] and applied around each
// execution. They are applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs process, job, duration, and outcome of each execution
//   - [Recover] — catches executor panics and converts them to errors
//   - [Timeout] — cancels the execution context after the process deadline
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-process duration and outcome counters
//   - [JobContext] — exposes the job ID and progress reporting to executors
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) (result.Outputs, error) {
//	        // pre-processing
//	        out, err := next(ctx)
//	        // post-processing
//	        return out, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
