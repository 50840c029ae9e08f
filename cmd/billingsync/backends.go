package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/billingsync/migrations"
	"github.com/dmitrymomot/billingsync/pkg/config"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/pg"
	"github.com/dmitrymomot/billingsync/pkg/redis"
	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

var errUnknownDriver = errors.New("unknown driver")

// backends holds the store, the optional separate ledger and their probes.
type backends struct {
	store   subscription.Store
	ledger  subscription.Ledger
	checks  []httpserver.Check
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, app appConfig, log *slog.Logger) (*backends, error) {
	b := &backends{}
	if err := b.openStore(ctx, app, log); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openLedger(ctx, app.LedgerDriver); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openStore(ctx context.Context, app appConfig, log *slog.Logger) error {
	switch app.StoreDriver {
	case "memory", "":
		b.store = subscription.NewMemoryStore()
		return nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pool.Close)
		if app.AutoMigrate {
			if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
				return err
			}
		}
		db := pg.OpenDB(pool)
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.store = subscription.NewPostgresStore(db)
		b.checks = append(b.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
		return nil
	}
	return fmt.Errorf("%w: STORE_DRIVER=%q", errUnknownDriver, app.StoreDriver)
}

func (b *backends) openLedger(ctx context.Context, driver string) error {
	switch driver {
	case "":
		return nil

	case "memory":
		if ms, ok := b.store.(*subscription.MemoryStore); ok {
			b.ledger = ms.Processed()
		} else {
			b.ledger = subscription.NewMemoryLedger()
		}
		return nil

	case "postgres":
		ps, ok := b.store.(*subscription.PostgresStore)
		if !ok {
			return fmt.Errorf("%w: LEDGER_DRIVER=postgres requires STORE_DRIVER=postgres", errUnknownDriver)
		}
		b.ledger = ps
		return nil

	case "redis":
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.ledger = subscription.NewRedisLedger(client, subscription.WithKeyPrefix(cfg.KeyPrefix))
		b.checks = append(b.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)})
		return nil
	}
	return fmt.Errorf("%w: LEDGER_DRIVER=%q", errUnknownDriver, driver)
}
