package processes

import "time"

// Config holds configuration for the job engine.
type Config struct {
	// Concurrency is the number of jobs that may be running at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// QueueSize bounds the in-memory FIFO of jobs waiting for a slot.
	// Jobs that do not fit stay accepted in the store and are picked up
	// by the backfill loop.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// PollInterval is how often the pool backfills its queue from the store.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// SyncTimeout bounds how long a synchronous execute request waits
	// before falling back to an asynchronous response.
	SyncTimeout time.Duration `json:"sync_timeout" yaml:"sync_timeout"`

	// DismissGrace is how long dismissing a running job waits for the
	// executor to acknowledge cancellation before forcing the transition.
	DismissGrace time.Duration `json:"dismiss_grace" yaml:"dismiss_grace"`

	// HeartbeatInterval is how often worker leases are renewed.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// LeaseTimeout is how long a running job's lease stays valid without
	// a heartbeat. Jobs past it are orphaned.
	LeaseTimeout time.Duration `json:"lease_timeout" yaml:"lease_timeout"`

	// Retention is how long finished jobs and their results are kept.
	Retention time.Duration `json:"retention" yaml:"retention"`

	// GCSchedule is the cron expression driving the garbage collector.
	GCSchedule string `json:"gc_schedule" yaml:"gc_schedule"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       8,
		QueueSize:         256,
		PollInterval:      1 * time.Second,
		SyncTimeout:       30 * time.Second,
		DismissGrace:      5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		LeaseTimeout:      30 * time.Second,
		Retention:         24 * time.Hour,
		GCSchedule:        "@every 1m",
		ShutdownTimeout:   30 * time.Second,
	}
}
