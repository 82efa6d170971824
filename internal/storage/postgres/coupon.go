package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gse-shop/orderflow/internal/domain/coupon"
)

const (
	// Bloom prefilter sizing: generous headroom over the expected code
	// count keeps the false-positive rate low as campaigns add codes.
	bloomCapacity = 1 << 20
	bloomFPR      = 0.001

	couponColumns = `code, discount_percent, max_usage_limit, expiration_date, created_at, updated_at`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listCouponCodesSQL = `SELECT code FROM coupons`

	insertCouponSQL = `INSERT INTO coupons (code, discount_percent, max_usage_limit, expiration_date)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	updateCouponSQL = `UPDATE coupons
		SET discount_percent = $2, max_usage_limit = $3, expiration_date = $4, updated_at = now()
		WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.Registry = (*CouponRegistry)(nil)

// CouponRegistry implements coupon.Registry backed by PostgreSQL, with an
// in-memory bloom prefilter over known codes so requests carrying made-up
// codes are rejected without a round trip.
type CouponRegistry struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCouponRegistry builds the registry and seeds the prefilter with every
// code currently in the database.
func NewCouponRegistry(ctx context.Context, pool *pgxpool.Pool) (*CouponRegistry, error) {
	r := &CouponRegistry{
		pool:   pool,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	rows, err := pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("loading coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning coupon codes: %w", err)
	}
	for _, code := range codes {
		r.filter.AddString(code)
	}
	return r, nil
}

// mightExist consults the bloom prefilter. False means definitely absent;
// true still requires a database read.
func (r *CouponRegistry) mightExist(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter.TestString(code)
}

// FindByCode returns the coupon regardless of usability.
func (r *CouponRegistry) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	if !r.mightExist(code) {
		return nil, coupon.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// FindUsable returns the coupon only if it can be applied to a new order at
// the given instant: not expired, with remaining uses.
func (r *CouponRegistry) FindUsable(ctx context.Context, code string, now time.Time) (*coupon.Coupon, error) {
	c, err := r.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.ExpirationDate.After(now) {
		return nil, coupon.ErrExpired
	}
	if c.MaxUsageLimit <= 0 {
		return nil, coupon.ErrUsageLimitReached
	}
	return c, nil
}

// Create persists a new coupon and registers its code with the prefilter.
func (r *CouponRegistry) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	err := r.pool.QueryRow(ctx, insertCouponSQL,
		c.Code, c.DiscountPercent, c.MaxUsageLimit, c.ExpirationDate,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}

	r.mu.Lock()
	r.filter.AddString(c.Code)
	r.mu.Unlock()
	return nil
}

// Update rewrites the coupon's rule fields.
func (r *CouponRegistry) Update(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, c.DiscountPercent, c.MaxUsageLimit, c.ExpirationDate,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. The bloom filter keeps the code (it cannot
// forget); lookups after deletion fall through to the database and miss.
func (r *CouponRegistry) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.Code, &c.DiscountPercent, &c.MaxUsageLimit,
		&c.ExpirationDate, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
