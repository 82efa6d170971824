package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

// Tx is the transactional view the service mutates state through. Every
// method runs inside the enclosing store transaction; lock methods take
// pessimistic row locks that are held until the transaction commits or
// rolls back.
type Tx interface {
	// LockProducts locks and returns the products with the given ids,
	// in ascending id order. The fixed lock order prevents circular wait
	// between checkouts with overlapping product sets.
	LockProducts(ctx context.Context, ids []int64) ([]product.Product, error)
	// UpdateProductQuantities persists new absolute quantity/availability
	// values for the given products.
	UpdateProductQuantities(ctx context.Context, products []product.Product) error

	// DeleteCartLines removes the owner's cart lines that exactly match
	// the consumed (product, quantity) pairs. Other cart lines stay.
	DeleteCartLines(ctx context.Context, ownerID int64, lines []cart.Line) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []Item) error
	// LockOrder locks and returns the order, or ErrNotFound.
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	Items(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	// UpdateOrder persists status, discount percent, and coupon reference.
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteItem(ctx context.Context, orderID uuid.UUID, itemID int64) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	// LockCoupon locks and returns the coupon, or coupon.ErrNotFound.
	LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
	// AdjustCouponUsage adds delta to the coupon's remaining-usage counter.
	AdjustCouponUsage(ctx context.Context, code string, delta int) error
}

// Store runs order transactions and serves read-only order queries.
// Implementations translate lock-wait timeouts and deadlocks into
// ErrContention before the error crosses this boundary.
type Store interface {
	// InTx runs fn inside a single transaction. Any error from fn rolls
	// the whole transaction back; partial effects are never observable.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Order, error)
	// PendingWithExpiredCoupon returns pending orders whose attached
	// coupon expired before now. Input to the maintenance sweep.
	PendingWithExpiredCoupon(ctx context.Context, now time.Time) ([]Order, error)
}
