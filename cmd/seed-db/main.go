// Command seed-db loads the product catalog and coupon set from JSON files
// into the database. Files ending in .gz are decompressed on the fly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/product"
	"github.com/gse-shop/orderflow/internal/storage/postgres"
)

type productJSON struct {
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent int             `json:"discount_percent"`
}

type couponJSON struct {
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	MaxUsageLimit   int       `json:"max_usage_limit"`
	ExpirationDate  time.Time `json:"expiration_date"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		couponsFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.gz supported)")
	flag.StringVar(&couponsFile, "coupons-file", "", "path to coupons JSON file (.gz supported), optional")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, couponsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, couponsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, "")
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if couponsFile != "" {
		if err := seedCoupons(ctx, pool, couponsFile); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	var entries []productJSON
	if err := decodeFile(productsFile, &entries); err != nil {
		return err
	}

	repo := postgres.NewProductRepository(pool)
	for _, e := range entries {
		p := &product.Product{
			Title:           e.Title,
			Quantity:        e.Quantity,
			UnitPrice:       e.UnitPrice,
			DiscountPercent: e.DiscountPercent,
			Available:       e.Quantity > 0,
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %q", e.Title)
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %q", e.Title)
		}
	}

	slog.Info("products seeded", slog.Int("count", len(entries)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, couponsFile string) error {
	var entries []couponJSON
	if err := decodeFile(couponsFile, &entries); err != nil {
		return err
	}

	registry, err := postgres.NewCouponRegistry(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "create coupon registry")
	}
	for _, e := range entries {
		c := &coupon.Coupon{
			Code:            e.Code,
			DiscountPercent: e.DiscountPercent,
			MaxUsageLimit:   e.MaxUsageLimit,
			ExpirationDate:  e.ExpirationDate,
		}
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %q", e.Code)
		}
		if err := registry.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "insert coupon %q", e.Code)
		}
	}

	slog.Info("coupons seeded", slog.Int("count", len(entries)))
	return nil
}

// decodeFile reads a JSON array from path, transparently decompressing
// gzip input.
func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip %s", path)
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
