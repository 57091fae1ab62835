// Package bunstore implements store.Store using the Bun ORM. It runs on
// PostgreSQL (pgdialect) or SQLite (sqlitedialect); the schema is derived
// from the models so the same Migrate works on both.
//
// The caller owns the *bun.DB lifecycle; bunstore never closes it. Pass the
// db handle through the constructor:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/xraph/processes/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(...))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
//
// For a single-node deployment, SQLite works the same way:
//
//	sqldb, _ := sql.Open("sqlite3", "file:processes.db?_busy_timeout=5000")
//	sqldb.SetMaxOpenConns(1)
//	db := bun.NewDB(sqldb, sqlitedialect.New())
package bunstore
