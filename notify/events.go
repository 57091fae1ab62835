package notify

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// is appended to the subject prefix when publishing.
const (
	EventJobAccepted    = "job.accepted"
	EventJobStarted     = "job.started"
	EventJobSucceeded   = "job.succeeded"
	EventJobFailed      = "job.failed"
	EventJobDismissed   = "job.dismissed"
	EventJobInterrupted = "job.interrupted"
	EventJobExpunged    = "job.expunged"
)

// AllEvents lists every event type the extension can publish.
func AllEvents() []string {
	return []string{
		EventJobAccepted,
		EventJobStarted,
		EventJobSucceeded,
		EventJobFailed,
		EventJobDismissed,
		EventJobInterrupted,
		EventJobExpunged,
	}
}
