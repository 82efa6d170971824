// Command coupon-sweeper periodically detaches expired coupons from pending
// orders so their discounts and usage counters do not stay consumed forever.
package main

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/gse-shop/orderflow/internal/app"
	"github.com/gse-shop/orderflow/internal/authz"
	"github.com/gse-shop/orderflow/internal/domain/order"
	"github.com/gse-shop/orderflow/internal/storage/postgres"
)

const sweepInterval = 5 * time.Minute

func main() {
	sdkapp.Run(func(ctx context.Context, lg *zap.Logger, _ *sdkapp.Telemetry) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		return run(ctx, lg, cfg)
	})
}

func run(ctx context.Context, lg *zap.Logger, cfg *app.Config) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.LockTimeout.String())
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	staff := authz.NewStaffCache(postgres.StaffLoader(pool), cfg.Staff.CacheTTL, lg)
	orders := order.NewService(
		postgres.NewOrderStore(pool),
		postgres.NewCartRepository(pool),
		postgres.NewProductRepository(pool),
		staff,
		lg,
	)

	lg.Info("sweeper started", zap.Duration("interval", sweepInterval))

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	// One pass at startup so a restart never delays overdue work.
	sweep(ctx, lg, orders)
	for {
		select {
		case <-ctx.Done():
			lg.Info("sweeper stopping")
			return nil
		case <-ticker.C:
			sweep(ctx, lg, orders)
		}
	}
}

func sweep(ctx context.Context, lg *zap.Logger, orders *order.Service) {
	affected, err := orders.SweepExpiredCoupons(ctx)
	if err != nil {
		lg.Error("sweep failed", zap.Error(err))
		return
	}
	if len(affected) > 0 {
		lg.Info("sweep done", zap.Int("orders", len(affected)))
	}
}
