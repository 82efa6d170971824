package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/order"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

const (
	orderColumns = `id, owner_id, status, discount_percent, coupon_code, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	listOrdersByOwnerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE owner_id = $1 ORDER BY updated_at DESC`

	// Ascending id defines the lock-acquisition order shared by every
	// transaction that touches product rows.
	lockProductsSQL = `SELECT id, title, quantity, unit_price, discount_percent, available, created_at, updated_at
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	updateProductQuantitySQL = `UPDATE products
		SET quantity = $2, available = $3, updated_at = now() WHERE id = $1`

	deleteCartLineSQL = `DELETE FROM cart_items USING carts
		WHERE cart_items.cart_id = carts.id
		  AND carts.owner_id = $1
		  AND cart_items.product_id = $2
		  AND cart_items.quantity = $3`

	insertOrderSQL = `INSERT INTO orders (id, owner_id, status, discount_percent, coupon_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity)
		VALUES ($1, $2, $3)`

	orderItemsSQL = `SELECT id, order_id, product_id, quantity, created_at
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderSQL = `UPDATE orders
		SET status = $2, discount_percent = $3, coupon_code = $4, updated_at = now()
		WHERE id = $1`

	deleteOrderItemSQL = `DELETE FROM order_items WHERE order_id = $1 AND id = $2`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	lockCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

	adjustCouponUsageSQL = `UPDATE coupons
		SET max_usage_limit = max_usage_limit + $2, updated_at = now() WHERE code = $1`

	pendingExpiredCouponSQL = `SELECT o.id, o.owner_id, o.status, o.discount_percent, o.coupon_code, o.created_at, o.updated_at
		FROM orders o JOIN coupons c ON o.coupon_code = c.code
		WHERE o.status = 'pending' AND c.expiration_date <= $1
		ORDER BY o.created_at`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. All mutating
// operations run through InTx so row locks cover every dependent write.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn inside a single transaction; any error rolls everything
// back. Lock-wait timeouts and deadlocks come back as order.ErrContention.
func (s *OrderStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = pgtx.Rollback(ctx)
	}()

	if err := fn(&orderTx{tx: pgtx}); err != nil {
		return translateContention(err)
	}

	if err := pgtx.Commit(ctx); err != nil {
		return translateContention(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// GetOrder returns one order without locking it.
func (s *OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	return &o, nil
}

// GetItems returns the order's items in insertion order.
func (s *OrderStore) GetItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := s.pool.Query(ctx, orderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

// ListByOwner returns the owner's orders, most recently updated first.
func (s *OrderStore) ListByOwner(ctx context.Context, ownerID int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersByOwnerSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for owner %d: %w", ownerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// PendingWithExpiredCoupon returns pending orders whose coupon expired
// before now.
func (s *OrderStore) PendingWithExpiredCoupon(ctx context.Context, now time.Time) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, pendingExpiredCouponSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing orders with expired coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// orderTx implements order.Tx over a live pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) LockProducts(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (t *orderTx) UpdateProductQuantities(ctx context.Context, ps []product.Product) error {
	batch := &pgx.Batch{}
	for _, p := range ps {
		batch.Queue(updateProductQuantitySQL, p.ID, p.Quantity, p.Available)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("updating product quantities: %w", err)
	}
	return nil
}

func (t *orderTx) DeleteCartLines(ctx context.Context, ownerID int64, lines []cart.Line) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(deleteCartLineSQL, ownerID, line.ProductID, line.Quantity)
	}
	br := t.tx.SendBatch(ctx, batch)
	for _, line := range lines {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("deleting cart line for product %d: %w", line.ProductID, err)
		}
		// The exact-match delete re-asserts the checkout check under the
		// row locks: a line changed since validation matches no row.
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return &cart.FieldError{
				Field:   "quantity",
				Message: "quantity must match the quantity registered in the cart",
			}
		}
	}
	return br.Close()
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.OwnerID, string(o.Status), o.DiscountPercent, o.CouponCode,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) InsertItems(ctx context.Context, items []order.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(insertOrderItemSQL, it.OrderID, it.ProductID, it.Quantity)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting order items: %w", err)
	}
	return nil
}

func (t *orderTx) LockOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, lockOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %s: %w", id, err)
	}
	return &o, nil
}

func (t *orderTx) Items(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := t.tx.Query(ctx, orderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

func (t *orderTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.DiscountPercent, o.CouponCode,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) DeleteItem(ctx context.Context, orderID uuid.UUID, itemID int64) error {
	tag, err := t.tx.Exec(ctx, deleteOrderItemSQL, orderID, itemID)
	if err != nil {
		return fmt.Errorf("deleting order item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrItemNotFound
	}
	return nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %s: %w", id, err)
	}
	return nil
}

func (t *orderTx) LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := t.tx.Query(ctx, lockCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}
	return &c, nil
}

func (t *orderTx) AdjustCouponUsage(ctx context.Context, code string, delta int) error {
	tag, err := t.tx.Exec(ctx, adjustCouponUsageSQL, code, delta)
	if err != nil {
		return fmt.Errorf("adjusting usage of coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &status, &o.DiscountPercent,
		&o.CouponCode, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.CreatedAt)
	return it, err
}
