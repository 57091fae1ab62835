package redis

// Redis key naming conventions for processes data.
// All keys are prefixed with "processes:" to avoid collisions.

const keyPrefix = "processes:"

// ── Job keys ──

// jobKey returns the key for a job record: processes:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobsKey is the Sorted Set of all job IDs scored by creation time.
const jobsKey = keyPrefix + "jobs"

// finishedKey is the Sorted Set of terminal job IDs scored by finish time.
const finishedKey = keyPrefix + "finished"

// leasesKey is the Sorted Set of running job IDs scored by lease expiry.
const leasesKey = keyPrefix + "leases"

// tombstoneKey marks an expunged job: processes:tombstone:{id}
func tombstoneKey(id string) string { return keyPrefix + "tombstone:" + id }

// ── Result keys ──

// resultKey returns the key for a job's outputs: processes:result:{id}
func resultKey(id string) string { return keyPrefix + "result:" + id }
