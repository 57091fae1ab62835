// Package gc removes finished jobs past their retention and fails jobs
// whose worker disappeared.
//
// A Collector runs two passes on a cron schedule:
//
//   - Retention sweep: terminal jobs that finished before now minus the
//     retention period are expunged. The job record and its results are
//     deleted together and a tombstone is left, so later lookups report
//     processes.ErrGone instead of processes.ErrJobNotFound. Non-terminal
//     jobs are never touched.
//   - Orphan reaper: running jobs whose lease expired are moved to failed
//     with error kind "interrupted". Jobs still executing in this process
//     are skipped; their heartbeat will renew the lease.
//
// Every write is a compare-and-swap, so several collectors sharing one
// store do not race each other into inconsistent states.
//
// Schedules use standard five-field cron syntax or descriptors such as
// "@every 1m" and "@hourly".
package gc
