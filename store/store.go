package store

import (
	"context"

	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store, which is what makes
// ExpungeJob able to remove a job and its results atomically.
type Store interface {
	job.Store
	result.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
