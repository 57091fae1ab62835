package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

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
	_ ext.Shutdown       = (*Extension)(nil)

	_ Publisher = (*nats.Conn)(nil)
)

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// flusher is implemented by publishers that buffer, such as *nats.Conn.
type flusher interface {
	FlushTimeout(timeout time.Duration) error
}

// Extension publishes lifecycle events through a Publisher.
type Extension struct {
	pub      Publisher
	prefix   string
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that publishes lifecycle events through pub.
func New(pub Publisher, opts ...Option) *Extension {
	h := &Extension{pub: pub, prefix: "processes"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect dials a NATS server with a client name identifying the engine.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{nats.Name("processes")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", url, err)
	}
	return nc, nil
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "nats-notify" }

// Subject returns the subject an event type is published on.
func (h *Extension) Subject(eventType string) string {
	if h.prefix == "" {
		return eventType
	}
	return h.prefix + "." + eventType
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobAccepted implements ext.JobAccepted.
func (h *Extension) OnJobAccepted(_ context.Context, j *job.Job) error {
	return h.publish(EventJobAccepted, newJobPayload(j))
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(_ context.Context, j *job.Job) error {
	return h.publish(EventJobStarted, newJobPayload(j))
}

// OnJobSucceeded implements ext.JobSucceeded.
func (h *Extension) OnJobSucceeded(_ context.Context, j *job.Job, elapsed time.Duration) error {
	return h.publish(EventJobSucceeded, &jobSucceededPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(_ context.Context, j *job.Job) error {
	return h.publish(EventJobFailed, newFailedPayload(j))
}

// OnJobDismissed implements ext.JobDismissed.
func (h *Extension) OnJobDismissed(_ context.Context, j *job.Job, forced bool) error {
	return h.publish(EventJobDismissed, &jobDismissedPayload{
		jobPayload: *newJobPayload(j),
		Forced:     forced,
	})
}

// OnJobInterrupted implements ext.JobInterrupted.
func (h *Extension) OnJobInterrupted(_ context.Context, j *job.Job) error {
	return h.publish(EventJobInterrupted, newFailedPayload(j))
}

// OnJobExpunged implements ext.JobExpunged.
func (h *Extension) OnJobExpunged(_ context.Context, jobID id.JobID) error {
	return h.publish(EventJobExpunged, &expungedPayload{JobID: jobID.String()})
}

// OnShutdown implements ext.Shutdown by flushing buffered messages.
func (h *Extension) OnShutdown(ctx context.Context) error {
	f, ok := h.pub.(flusher)
	if !ok {
		return nil
	}
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil
	}
	return f.FlushTimeout(timeout)
}

// ── Internal helpers ────────────────────────────────

// publish encodes and sends an event if its type is enabled.
func (h *Extension) publish(eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	b, err := json.Marshal(&envelope{Type: eventType, Time: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", eventType, err)
	}
	if err := h.pub.Publish(h.Subject(eventType), b); err != nil {
		return fmt.Errorf("notify: publish %s: %w", eventType, err)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type jobPayload struct {
	JobID     string `json:"job_id"`
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
	Mode      string `json:"mode,omitempty"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:     j.ID.String(),
		ProcessID: j.ProcessID,
		Status:    string(j.Status),
		Mode:      string(j.Mode),
	}
}

type jobSucceededPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newFailedPayload(j *job.Job) *jobFailedPayload {
	p := &jobFailedPayload{jobPayload: *newJobPayload(j)}
	if j.Error != nil {
		p.ErrorKind = string(j.Error.Kind)
		p.Error = j.Error.Message
	}
	return p
}

type jobDismissedPayload struct {
	jobPayload
	Forced bool `json:"forced"`
}

type expungedPayload struct {
	JobID string `json:"job_id"`
}
