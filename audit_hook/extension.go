package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/processes/ext"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.JobAccepted    = (*Extension)(nil)
	_ ext.JobStarted     = (*Extension)(nil)
	_ ext.JobSucceeded   = (*Extension)(nil)
	_ ext.JobFailed      = (*Extension)(nil)
	_ ext.JobDismissed   = (*Extension)(nil)
	_ ext.JobInterrupted = (*Extension)(nil)
	_ ext.JobExpunged    = (*Extension)(nil)
)

// Recorder is implemented by audit backends.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events as structured log records.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges job lifecycle hooks to a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobAccepted implements ext.JobAccepted.
func (e *Extension) OnJobAccepted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobAccepted, SeverityInfo, OutcomeSuccess, j.ID.String(), "",
		"process_id", j.ProcessID,
		"mode", string(j.Mode),
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j.ID.String(), "",
		"process_id", j.ProcessID,
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess, j.ID.String(), "",
		"process_id", j.ProcessID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job) error {
	kind, reason := errorInfo(j)
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure, j.ID.String(), reason,
		"process_id", j.ProcessID,
		"error_kind", kind,
	)
}

// OnJobDismissed implements ext.JobDismissed.
func (e *Extension) OnJobDismissed(ctx context.Context, j *job.Job, forced bool) error {
	return e.record(ctx, ActionJobDismissed, SeverityWarning, OutcomeSuccess, j.ID.String(), "",
		"process_id", j.ProcessID,
		"forced", forced,
	)
}

// OnJobInterrupted implements ext.JobInterrupted.
func (e *Extension) OnJobInterrupted(ctx context.Context, j *job.Job) error {
	_, reason := errorInfo(j)
	return e.record(ctx, ActionJobInterrupted, SeverityCritical, OutcomeFailure, j.ID.String(), reason,
		"process_id", j.ProcessID,
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobExpunged implements ext.JobExpunged.
func (e *Extension) OnJobExpunged(ctx context.Context, jobID id.JobID) error {
	return e.record(ctx, ActionJobExpunged, SeverityWarning, OutcomeSuccess, jobID.String(), "")
}

func errorInfo(j *job.Job) (kind, message string) {
	if j.Error == nil {
		return "", ""
	}
	return string(j.Error.Kind), j.Error.Message
}

// record builds and sends an audit event if the action is enabled.
// kvPairs are added to Metadata. Recorder errors are logged, never
// returned, so auditing cannot affect job execution.
func (e *Extension) record(ctx context.Context, action, severity, outcome, resourceID, reason string, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("job_id", resourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
