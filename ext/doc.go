// Package ext defines the extension system for the job engine.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, publishing notifications, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s succeeded in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobAccepted] — a job record was created
//   - [JobStarted] — a worker began executing the job
//   - [JobSucceeded] — the job finished and its outputs were stored
//   - [JobFailed] — the job failed (execution error or timeout)
//   - [JobDismissed] — the job was cancelled by a client
//   - [JobInterrupted] — the job was orphaned and reaped
//   - [JobExpunged] — the job was removed after the retention window
//
// # Other Hooks
//
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
