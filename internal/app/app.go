package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/purchasekit/internal/catalog"
	"github.com/xenking/purchasekit/internal/channel/sandbox"
	"github.com/xenking/purchasekit/internal/purchase"
	"github.com/xenking/purchasekit/internal/storage/postgres"
)

// Run creates all dependencies, starts the purchase coordinator, and keeps it
// registered until shutdown. It is the single wiring point for the daemon.
func Run(ctx context.Context, lg *zap.Logger, m *app.Metrics, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("catalog_url", cfg.CatalogURL),
		zap.Strings("products", cfg.Products),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Collaborators.
	store := postgres.NewEntitlementStore(pool)
	cache := postgres.NewDetailsCache(pool)
	client := catalog.NewClient(cfg.CatalogURL, nil)
	channel := sandbox.New(sandbox.Config{
		Latency: cfg.Sandbox.Latency,
		Logger:  lg.Named("sandbox"),
	})

	metrics, err := purchase.NewMetrics(m.MeterProvider().Meter("purchasekit"))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	coord, err := purchase.New(purchase.Config{
		Store:      store,
		Catalog:    client,
		Channel:    channel,
		Caps:       channel,
		Cache:      cache,
		Logger:     lg.Named("purchase"),
		Metrics:    metrics,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return errors.Wrap(err, "create coordinator")
	}
	coord.Start(ctx)
	defer coord.Close()

	changeSub := coord.OnChange(func() {
		for _, p := range coord.Products() {
			lg.Info("Product state",
				zap.String("product", p.ID),
				zap.String("state", string(p.State)),
				zap.Bool("entitled", p.Entitled),
			)
		}
	})
	defer changeSub.Remove()

	failureSub := coord.OnTransactionFailure(func(msg string) {
		lg.Warn("Transaction failed", zap.String("reason", msg))
	})
	defer failureSub.Remove()

	coord.Register(ctx, cfg.Products...)
	lg.Info("Coordinator running", zap.Duration("register_interval", cfg.RegisterInterval))

	// Registration sweeps drive catalog retries and cache refreshes; the
	// scheduler no-ops when nothing needs fetching.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registerLoop(gctx, coord, cfg)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerLoop(ctx context.Context, coord *purchase.Coordinator, cfg *Config) error {
	ticker := time.NewTicker(cfg.RegisterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			coord.Register(ctx, cfg.Products...)
		}
	}
}
