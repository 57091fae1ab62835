package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/processes/config"
	"github.com/xraph/processes/store"
	bunstore "github.com/xraph/processes/store/bun"
	"github.com/xraph/processes/store/memory"
	mongostore "github.com/xraph/processes/store/mongo"
	"github.com/xraph/processes/store/postgres"
	redisstore "github.com/xraph/processes/store/redis"
)

// closer closes the driver resources behind a store that does not own
// them.
type closer func() error

// ownedStore closes the driver connection together with the store.
type ownedStore struct {
	store.Store
	close closer
}

func (s ownedStore) Close() error {
	return errors.Join(s.Store.Close(), s.close())
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil

	case config.DriverBun:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return ownedStore{Store: bunstore.New(db, bunstore.WithLogger(logger)), close: db.Close}, nil

	case config.DriverSQLite:
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows a single writer.
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return ownedStore{Store: bunstore.New(db, bunstore.WithLogger(logger)), close: db.Close}, nil

	case config.DriverRedis:
		opt, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		return ownedStore{Store: redisstore.New(client, redisstore.WithLogger(logger)), close: client.Close}, nil

	case config.DriverMongo:
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() error { return client.Disconnect(context.WithoutCancel(ctx)) }
		s := mongostore.New(client.Database(cfg.Database), mongostore.WithLogger(logger))
		return ownedStore{Store: s, close: disconnect}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
