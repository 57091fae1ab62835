package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// meterName is the instrumentation scope name for execution metrics.
const meterName = "github.com/xraph/processes"

// Metrics returns middleware that records per-execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - processes.execution.duration (Float64Histogram): execution time in
//     seconds, with attributes: process_id, status
//   - processes.execution.count (Int64Counter): total executions,
//     with attributes: process_id, status
//
// status is one of "ok", "error", "timeout" or "cancelled".
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error, the API returns noop instruments.
	duration, dErr := meter.Float64Histogram(
		"processes.execution.duration",
		metric.WithDescription("Duration of process execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	executions, eErr := meter.Int64Counter(
		"processes.execution.count",
		metric.WithDescription("Total number of process executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr

	return func(ctx context.Context, j *job.Job, next Handler) (result.Outputs, error) {
		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("process_id", j.ProcessID),
			attribute.String("status", outcome(err)),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return out, err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
