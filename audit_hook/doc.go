// Package audithook is an extension that turns job lifecycle hooks into
// audit events for an append-only audit trail.
//
// Every hook emits a structured event through the [Recorder] interface.
// Severity follows the outcome: info for normal progress, warning for
// dismissals and expunges, critical for failures and interruptions.
//
// # Logging recorder
//
//	orchestrator.WithExtension(audithook.New(audithook.LogRecorder(logger)))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobInterrupted,
//	    ),
//	)
package audithook
