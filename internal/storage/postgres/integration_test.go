//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/gse-shop/orderflow/internal/authz"
	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/order"
	"github.com/gse-shop/orderflow/internal/domain/payment"
	"github.com/gse-shop/orderflow/internal/domain/product"
	"github.com/gse-shop/orderflow/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orderflow"),
		tcpostgres.WithUsername("orderflow"),
		tcpostgres.WithPassword("orderflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	pool, err = postgres.NewPool(ctx, connString, "2s")
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

func seedProduct(t *testing.T, title string, quantity int, price int64, discount int) *product.Product {
	t.Helper()
	p := &product.Product{
		Title:           title,
		Quantity:        quantity,
		UnitPrice:       decimal.NewFromInt(price),
		DiscountPercent: discount,
		Available:       quantity > 0,
	}
	require.NoError(t, postgres.NewProductRepository(pool).Create(context.Background(), p))
	return p
}

func newOrderService(t *testing.T) *order.Service {
	t.Helper()
	staff := authz.NewStaffCache(postgres.StaffLoader(pool), time.Minute, zap.NewNop())
	return order.NewService(
		postgres.NewOrderStore(pool),
		postgres.NewCartRepository(pool),
		postgres.NewProductRepository(pool),
		staff,
		zap.NewNop(),
	)
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewProductRepository(pool)

	p := seedProduct(t, "mechanical keyboard", 5, 2_500_000, 20)
	require.NotZero(t, p.ID)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "mechanical keyboard", got.Title)
	assert.True(t, got.UnitPrice.Equal(decimal.NewFromInt(2_500_000)))
	assert.True(t, got.Available)

	_, err = repo.GetByID(ctx, 999_999)
	require.ErrorIs(t, err, product.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCartRepository(pool)
	p := seedProduct(t, "mouse", 10, 800_000, 0)

	const ownerID = 1001

	c1, err := repo.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	c2, err := repo.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID, "one cart per owner")

	item := &cart.Item{CartID: c1.ID, ProductID: p.ID, Quantity: 2}
	require.NoError(t, err)
	require.NoError(t, repo.UpsertItem(ctx, item))
	require.NotZero(t, item.ID)

	// same product upserts into the same row
	item.Quantity = 5
	require.NoError(t, repo.UpsertItem(ctx, item))

	items, err := repo.ItemsByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	require.NoError(t, repo.DeleteItem(ctx, c1.ID, item.ID))
	require.ErrorIs(t, repo.DeleteItem(ctx, c1.ID, item.ID), cart.ErrItemNotFound)
}

func TestCouponRegistry(t *testing.T) {
	ctx := context.Background()
	registry, err := postgres.NewCouponRegistry(ctx, pool)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, registry.Create(ctx, &coupon.Coupon{
		Code:            "ITG-FRESH",
		DiscountPercent: 15,
		MaxUsageLimit:   3,
		ExpirationDate:  now.Add(24 * time.Hour),
	}))
	require.NoError(t, registry.Create(ctx, &coupon.Coupon{
		Code:            "ITG-STALE",
		DiscountPercent: 15,
		MaxUsageLimit:   3,
		ExpirationDate:  now.Add(-time.Hour),
	}))

	got, err := registry.FindUsable(ctx, "ITG-FRESH", now)
	require.NoError(t, err)
	assert.Equal(t, 15, got.DiscountPercent)

	_, err = registry.FindUsable(ctx, "ITG-STALE", now)
	require.ErrorIs(t, err, coupon.ErrExpired)

	// unknown codes are rejected by the bloom prefilter without a query
	_, err = registry.FindByCode(ctx, "ITG-NEVER-EXISTED")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	const ownerID = 2001

	products := postgres.NewProductRepository(pool)
	carts := postgres.NewCartRepository(pool)
	svc := newOrderService(t)

	p1 := seedProduct(t, "ssd", 10, 3_000_000, 0)
	p2 := seedProduct(t, "ram", 4, 1_500_000, 10)

	c, err := carts.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p1.ID, Quantity: 2}))
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p2.ID, Quantity: 4}))

	o, err := svc.CreateOrder(ctx, ownerID, []cart.Line{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)

	// stock reserved, second product fully drained
	got1, err := products.GetByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got1.Quantity)
	got2, err := products.GetByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got2.Quantity)
	assert.False(t, got2.Available)

	// cart lines consumed
	items, err := carts.ItemsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, items)

	// apply a coupon and check the total reflects it
	registry, err := postgres.NewCouponRegistry(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, registry.Create(ctx, &coupon.Coupon{
		Code:            "ITG-ORDER10",
		DiscountPercent: 10,
		MaxUsageLimit:   5,
		ExpirationDate:  time.Now().Add(time.Hour),
	}))
	require.NoError(t, svc.ApplyCoupon(ctx, o.ID, "ITG-ORDER10"))

	view, err := svc.Get(ctx, o.ID, ownerID)
	require.NoError(t, err)
	// 2*3000000 + 4*1350000 = 11400000, minus 10% = 10260000
	assert.True(t, view.Total.Equal(decimal.NewFromInt(10_260_000)), "got %s", view.Total)

	// cancel restores stock and the coupon's counter
	require.NoError(t, svc.Cancel(ctx, o.ID, ownerID))

	got1, err = products.GetByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got1.Quantity)
	got2, err = products.GetByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got2.Quantity)
	assert.True(t, got2.Available)

	cp, err := registry.FindByCode(ctx, "ITG-ORDER10")
	require.NoError(t, err)
	assert.Equal(t, 5, cp.MaxUsageLimit)

	// cancelled is terminal
	require.ErrorIs(t, svc.Cancel(ctx, o.ID, ownerID), order.ErrNotPending)
}

func TestOrderInsufficientStockRollsBack(t *testing.T) {
	ctx := context.Background()
	const ownerID = 2002

	products := postgres.NewProductRepository(pool)
	carts := postgres.NewCartRepository(pool)
	svc := newOrderService(t)

	p1 := seedProduct(t, "cpu", 10, 9_000_000, 0)
	p2 := seedProduct(t, "gpu", 1, 40_000_000, 0)

	c, err := carts.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p1.ID, Quantity: 3}))
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p2.ID, Quantity: 2}))

	_, err = svc.CreateOrder(ctx, ownerID, []cart.Line{
		{ProductID: p1.ID, Quantity: 3},
		{ProductID: p2.ID, Quantity: 2},
	})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p2.ID, stockErr.ProductID)

	// nothing was reserved, the cart is intact
	got1, err := products.GetByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got1.Quantity)

	items, err := carts.ItemsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestConcurrentCheckoutsSerializeOnStock(t *testing.T) {
	ctx := context.Background()
	owners := []int64{2101, 2102}

	products := postgres.NewProductRepository(pool)
	carts := postgres.NewCartRepository(pool)
	svc := newOrderService(t)

	p := seedProduct(t, "headset", 5, 2_800_000, 0)
	for _, ownerID := range owners {
		c, err := carts.GetOrCreate(ctx, ownerID)
		require.NoError(t, err)
		require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p.ID, Quantity: 3}))
	}

	// Both transactions contend for the same product row lock; whichever
	// commits second must see the decremented quantity and abort.
	start := make(chan struct{})
	errs := make(chan error, len(owners))
	for _, ownerID := range owners {
		go func(ownerID int64) {
			<-start
			_, err := svc.CreateOrder(ctx, ownerID, []cart.Line{{ProductID: p.ID, Quantity: 3}})
			errs <- err
		}(ownerID)
	}
	close(start)

	var failures []error
	for range owners {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1, "exactly one checkout must lose the race")
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, failures[0], &stockErr)
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	got, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
	assert.True(t, got.Available)
}

func TestConsumeCartLinesRequiresExactMatch(t *testing.T) {
	ctx := context.Background()
	const ownerID = 2201

	carts := postgres.NewCartRepository(pool)
	store := postgres.NewOrderStore(pool)

	p := seedProduct(t, "usb hub", 9, 1_100_000, 0)
	c, err := carts.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p.ID, Quantity: 2}))

	// a quantity that no longer matches the stored line affects no row
	err = store.InTx(ctx, func(tx order.Tx) error {
		return tx.DeleteCartLines(ctx, ownerID, []cart.Line{{ProductID: p.ID, Quantity: 5}})
	})
	var fieldErr *cart.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "quantity", fieldErr.Field)

	// the mismatch rolled the transaction back, the line survives
	items, err := carts.ItemsByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	// the matching delete consumes it
	require.NoError(t, store.InTx(ctx, func(tx order.Tx) error {
		return tx.DeleteCartLines(ctx, ownerID, []cart.Line{{ProductID: p.ID, Quantity: 2}})
	}))
	items, err = carts.ItemsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStaffMayCancelForeignOrder(t *testing.T) {
	ctx := context.Background()
	const ownerID = 2003
	const staffID = 9001

	_, err := pool.Exec(ctx, `INSERT INTO staff_users (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, staffID)
	require.NoError(t, err)

	carts := postgres.NewCartRepository(pool)
	svc := newOrderService(t)

	p := seedProduct(t, "monitor", 3, 12_000_000, 0)
	c, err := carts.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p.ID, Quantity: 1}))

	o, err := svc.CreateOrder(ctx, ownerID, []cart.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	// a stranger sees nothing
	require.ErrorIs(t, svc.Cancel(ctx, o.ID, 7777), order.ErrNotFound)
	// staff may cancel
	require.NoError(t, svc.Cancel(ctx, o.ID, staffID))
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	const ownerID = 2004

	carts := postgres.NewCartRepository(pool)
	svc := newOrderService(t)
	payments := postgres.NewPaymentRepository(pool)

	p := seedProduct(t, "webcam", 5, 2_000_000, 0)
	c, err := carts.GetOrCreate(ctx, ownerID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(ctx, &cart.Item{CartID: c.ID, ProductID: p.ID, Quantity: 1}))

	o, err := svc.CreateOrder(ctx, ownerID, []cart.Line{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	ref := "123456"
	rows := []payment.Payment{
		{OrderID: o.ID, Authority: "A-1", Amount: decimal.NewFromInt(2_000_000), Status: payment.StatusFailed},
		{OrderID: o.ID, Authority: "A-2", RefID: &ref, Amount: decimal.NewFromInt(2_000_000), Status: payment.StatusSuccess},
	}
	for i := range rows {
		rows[i].ID = uuid.New()
		require.NoError(t, payments.Create(ctx, &rows[i]))
	}

	got, err := payments.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
