//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/processes/store"
	"github.com/xraph/processes/store/postgres"
	"github.com/xraph/processes/store/storetest"
)

// startPostgres starts one container for the whole test binary run and
// returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("processes_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func TestConformance(t *testing.T) {
	connStr := startPostgres(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })

		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		// Each case starts from empty tables.
		if _, err := s.Pool().Exec(ctx,
			`TRUNCATE processes_results, processes_jobs, processes_tombstones`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
