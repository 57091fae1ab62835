// Package middleware provides composable middleware for process execution.
// Middleware wraps executor calls synchronously and can modify execution
// (recover from panics, log, add tracing, bound execution time, etc.).
package middleware

import (
	"context"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// Handler is the terminal function that runs the process executor.
type Handler func(ctx context.Context) (result.Outputs, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the job being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (result.Outputs, error) {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
