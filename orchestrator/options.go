package orchestrator

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/processes"
	"github.com/xraph/processes/ext"
	"github.com/xraph/processes/id"
	mw "github.com/xraph/processes/middleware"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the engine configuration. Zero fields fall back to
// processes.DefaultConfig.
func WithConfig(cfg processes.Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithExtension registers an extension with the orchestrator.
func WithExtension(e ext.Extension) Option {
	return func(o *Orchestrator) { o.exts = append(o.exts, e) }
}

// WithMiddleware adds middleware to the execution chain. It runs inside
// the default recover, tracing, metrics, logging and timeout middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(o *Orchestrator) { o.mws = append(o.mws, m) }
}

// WithWorkerID overrides the generated worker identity, for example to
// keep it stable across restarts of the same node.
func WithWorkerID(wid id.WorkerID) Option {
	return func(o *Orchestrator) { o.workerID = wid }
}

// WithTracerProvider sets a custom OTel TracerProvider for the orchestrator.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the orchestrator.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}
