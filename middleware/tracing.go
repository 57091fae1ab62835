package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// tracerName is the instrumentation scope name for execution tracing.
const tracerName = "github.com/xraph/processes"

// Tracing returns middleware that wraps execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes: processes.job.id, processes.process.id, processes.mode.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		ctx, span := tracer.Start(ctx, "processes.job.execute",
			trace.WithAttributes(
				attribute.String("processes.job.id", j.ID.String()),
				attribute.String("processes.process.id", j.ProcessID),
				attribute.String("processes.mode", string(j.Mode)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
