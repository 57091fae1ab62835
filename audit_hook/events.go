package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobAccepted    = "job.accepted"
	ActionJobStarted     = "job.started"
	ActionJobSucceeded   = "job.succeeded"
	ActionJobFailed      = "job.failed"
	ActionJobDismissed   = "job.dismissed"
	ActionJobInterrupted = "job.interrupted"
	ActionJobExpunged    = "job.expunged"
)

// CategoryJob groups every action of this extension.
const CategoryJob = "processes.job"

// ResourceJob is the Resource field of every event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobAccepted,
		ActionJobStarted,
		ActionJobSucceeded,
		ActionJobFailed,
		ActionJobDismissed,
		ActionJobInterrupted,
		ActionJobExpunged,
	}
}
