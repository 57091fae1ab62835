package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/processes/ext"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/processes/observability"

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobAccepted    = (*MetricsExtension)(nil)
	_ ext.JobStarted     = (*MetricsExtension)(nil)
	_ ext.JobSucceeded   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobDismissed   = (*MetricsExtension)(nil)
	_ ext.JobInterrupted = (*MetricsExtension)(nil)
	_ ext.JobExpunged    = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics. Register it as an
// extension to track acceptance rates, success and failure counts,
// dismissals, orphaned jobs, and garbage collection.
type MetricsExtension struct {
	JobAccepted    metric.Int64Counter
	JobStarted     metric.Int64Counter
	JobSucceeded   metric.Int64Counter
	JobFailed      metric.Int64Counter
	JobDismissed   metric.Int64Counter
	JobInterrupted metric.Int64Counter
	JobExpunged    metric.Int64Counter
	JobDuration    metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}")) //nolint:errcheck // noop fallback
		return c
	}
	duration, _ := meter.Float64Histogram("processes.job.duration", //nolint:errcheck // noop fallback
		metric.WithDescription("Time from start to success in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobAccepted:    counter("processes.job.accepted", "Jobs created"),
		JobStarted:     counter("processes.job.started", "Jobs claimed by a worker"),
		JobSucceeded:   counter("processes.job.succeeded", "Jobs that finished successfully"),
		JobFailed:      counter("processes.job.failed", "Jobs that failed"),
		JobDismissed:   counter("processes.job.dismissed", "Jobs dismissed by clients"),
		JobInterrupted: counter("processes.job.interrupted", "Orphaned jobs reaped"),
		JobExpunged:    counter("processes.job.expunged", "Jobs removed after retention"),
		JobDuration:    duration,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func processAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("process_id", j.ProcessID))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobAccepted implements ext.JobAccepted.
func (m *MetricsExtension) OnJobAccepted(ctx context.Context, j *job.Job) error {
	m.JobAccepted.Add(ctx, 1, processAttr(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j *job.Job) error {
	m.JobStarted.Add(ctx, 1, processAttr(j))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobSucceeded.Add(ctx, 1, processAttr(j))
	m.JobDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("process_id", j.ProcessID)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job) error {
	kind := ""
	if j.Error != nil {
		kind = string(j.Error.Kind)
	}
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("process_id", j.ProcessID),
		attribute.String("error_kind", kind),
	))
	return nil
}

// OnJobDismissed implements ext.JobDismissed.
func (m *MetricsExtension) OnJobDismissed(ctx context.Context, j *job.Job, forced bool) error {
	m.JobDismissed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("process_id", j.ProcessID),
		attribute.String("forced", strconv.FormatBool(forced)),
	))
	return nil
}

// OnJobInterrupted implements ext.JobInterrupted.
func (m *MetricsExtension) OnJobInterrupted(ctx context.Context, j *job.Job) error {
	m.JobInterrupted.Add(ctx, 1, processAttr(j))
	return nil
}

// OnJobExpunged implements ext.JobExpunged.
func (m *MetricsExtension) OnJobExpunged(ctx context.Context, _ id.JobID) error {
	m.JobExpunged.Add(ctx, 1)
	return nil
}
