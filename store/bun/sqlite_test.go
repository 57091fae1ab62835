package bunstore_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/xraph/processes/store"
	bunstore "github.com/xraph/processes/store/bun"
	"github.com/xraph/processes/store/storetest"
)

// setupSQLiteStore returns a migrated store on a private in-memory database.
func setupSQLiteStore(t *testing.T) *bunstore.Store {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	s := bunstore.New(db, bunstore.WithLogger(slog.Default()))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return setupSQLiteStore(t) })
}

func TestSQLite_DBAccessor(t *testing.T) {
	s := setupSQLiteStore(t)
	if s.DB() == nil {
		t.Fatal("DB() returned nil")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The caller owns the handle, so it still works after Close.
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping after Close: %v", err)
	}
}
