// Command billingsync serves the billing notification endpoint and the
// subscription status API.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dmitrymomot/billingsync/pkg/config"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
	"github.com/dmitrymomot/billingsync/pkg/subscription"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	Name         string `env:"APP_NAME" envDefault:"billingsync"`
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"memory"` // memory or postgres
	LedgerDriver string `env:"LEDGER_DRIVER"`                    // memory, redis or postgres; empty uses the store
	AutoMigrate  bool   `env:"PG_AUTO_MIGRATE" envDefault:"true"`
}

func main() {
	var app appConfig
	config.MustLoad(&app)

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	logOpts, err := logCfg.Options()
	if err != nil {
		panic(err)
	}

	log := logger.New(append([]logger.Option{
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithContextExtractors(subscription.EventIDLogExtractor, requestid.LoggerExtractor()),
	}, logOpts...)...)
	logger.SetAsDefault(log)

	if err := run(context.Background(), app, log); err != nil {
		log.LogAttrs(context.Background(), slog.LevelError, "billingsync stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		billing subscription.Config
		httpCfg httpserver.Config
	)
	if err := config.Load(&billing); err != nil {
		return err
	}
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	provider, err := subscription.NewProvider(billing)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, app, log)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := append(billing.EngineOptions(), subscription.WithLogger(log))
	if b.ledger != nil {
		opts = append(opts, subscription.WithLedger(b.ledger))
	}
	engine, err := subscription.NewEngine(provider, b.store, opts...)
	if err != nil {
		return err
	}
	log.LogAttrs(ctx, slog.LevelInfo, "billing engine ready",
		logger.Provider(provider.Name()),
		slog.String("store", app.StoreDriver),
		slog.String("reservation", string(engine.Mode())),
	)

	router := newRouter(engine, subscription.NewEntitlements(b.store, nil), b.checks, log)
	return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(ctx, router)
}
