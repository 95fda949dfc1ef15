package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/bookslot/libs/db"
	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/memory"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/postgres"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/sqlite"
)

// backend is an opened storage driver. Every driver also serves as the
// outbox source for the relay.
type backend struct {
	store   booking.Store
	source  outbox.Source
	checks  []runtime.ReadyCheck
	migrate func(context.Context) error
	close   func()
}

func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*backend, error) {
	switch cfg.StorageDriver {
	case driverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.New(pool)
		return &backend{
			store:   store,
			source:  store,
			checks:  []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			migrate: func(ctx context.Context) error { return postgres.Migrate(ctx, pool) },
			close:   pool.Close,
		}, nil

	case driverSQLite:
		gdb, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := sqlite.New(gdb)
		return &backend{
			store:   store,
			source:  store,
			checks:  []runtime.ReadyCheck{{Name: "db", Check: sqlite.ReadyCheck(gdb)}},
			migrate: func(context.Context) error { return sqlite.Migrate(gdb) },
			close: func() {
				if err := sqlite.Close(gdb); err != nil {
					logger.Warn("sqlite close failed", "err", err)
				}
			},
		}, nil

	default:
		logger.Warn("using in-memory storage; data is lost on exit")
		store := memory.New()
		return &backend{
			store:   store,
			source:  store,
			migrate: func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}
}
