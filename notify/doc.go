// Package notify publishes job lifecycle events to NATS. When registered
// as an extension, it emits one message per lifecycle point (accepted,
// started, succeeded, failed, dismissed, interrupted, expunged) so other
// services can react without polling the job endpoints.
//
// Usage:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	hook := notify.New(nc)
//	orchestrator.New(store, registry, orchestrator.WithExtension(hook))
//
// Messages are JSON. The subject is the event type under the configured
// prefix, for example "processes.job.succeeded". To restrict which events
// are published:
//
//	hook := notify.New(nc,
//	    notify.WithEvents(notify.EventJobSucceeded, notify.EventJobFailed),
//	)
package notify
