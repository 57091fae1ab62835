// Package observability provides an OpenTelemetry metrics extension for the
// job engine. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for accepted, started, succeeded, failed, dismissed,
// interrupted and expunged jobs.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
