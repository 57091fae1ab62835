package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/processes/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

type migration struct {
	name string
	up   func(ctx context.Context, db bun.IDB) error
}

// migrations are idempotent and run in order on every Migrate call.
var migrations = []migration{
	{"create_jobs_table", func(ctx context.Context, db bun.IDB) error {
		if _, err := db.NewCreateTable().Model((*jobModel)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		indexes := []struct {
			name    string
			columns []string
		}{
			{"idx_processes_jobs_created", []string{"created_at", "id"}},
			{"idx_processes_jobs_finished", []string{"status", "finished_at"}},
			{"idx_processes_jobs_lease", []string{"status", "lease_expires_at"}},
		}
		for _, idx := range indexes {
			_, err := db.NewCreateIndex().Model((*jobModel)(nil)).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}},
	{"create_results_table", func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewCreateTable().Model((*resultModel)(nil)).IfNotExists().Exec(ctx)
		return err
	}},
	{"create_tombstones_table", func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewCreateTable().Model((*tombstoneModel)(nil)).IfNotExists().Exec(ctx)
		return err
	}},
}

// Migrate creates the schema. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if err := m.up(ctx, s.db); err != nil {
			return fmt.Errorf("processes/bun: migration %s: %w", m.name, err)
		}
		s.logger.Debug("applied migration", "name", m.name)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
