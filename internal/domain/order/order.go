package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/product"
)

// Status is the lifecycle state of an order. Pending is the only state that
// accepts mutations; success and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound is returned when an order does not exist or does not
	// belong to the requester.
	ErrNotFound = errors.New("order not found")
	// ErrItemNotFound is returned when an order item does not exist on the
	// referenced order.
	ErrItemNotFound = errors.New("order item not found")
	// ErrNotPending is returned when an operation requires the order to be
	// pending and it is not. Surfaced distinctly from ErrNotFound so the
	// caller can tell a missing order from a rejected state transition.
	ErrNotPending = errors.New("order is not pending")
	// ErrCouponAlreadyApplied is returned when applying a coupon to an
	// order that already carries one. Coupons do not stack.
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied to this order")
	// ErrNoCouponApplied is returned when discarding from an order without
	// an attached coupon.
	ErrNoCouponApplied = errors.New("no coupon is applied to this order")
	// ErrCouponMismatch is returned when the discard code does not match
	// the attached coupon.
	ErrCouponMismatch = errors.New("coupon code does not match the applied coupon")
	// ErrDiscountOverflow is returned when applying a coupon would push the
	// order's discount past 100 percent.
	ErrDiscountOverflow = errors.New("discount percent cannot exceed 100")
	// ErrContention is returned when the store could not acquire its row
	// locks within the configured timeout. The only retryable error class:
	// the whole operation is safe to retry from scratch.
	ErrContention = errors.New("storage contention, retry")
)

// InsufficientStockError reports the first product whose stock could not
// satisfy the requested reservation. Nothing is persisted when it is
// returned; the caller must re-fetch cart state before retrying.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Order is a user's purchase in progress or completed. DiscountPercent is
// cumulative from coupon application and never leaves [0, 100]. CouponCode is
// set only while the order is pending; at most one coupon at a time.
type Order struct {
	ID              uuid.UUID
	OwnerID         int64
	Status          Status
	DiscountPercent int
	CouponCode      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a reserved (product, quantity) line of an order. The reservation
// was taken by decrementing the product's stock in the same transaction that
// created the item, so the quantity was covered by stock at creation time.
type Item struct {
	ID        int64
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int
	CreatedAt time.Time
}

// ItemTotal returns quantity times the product's current final price.
//
// This follows current pricing, not a snapshot taken at order time, so
// historical totals shift when the catalog reprices. Flagged for product
// clarification; kept to match the established billing behaviour.
func ItemTotal(it Item, p product.Product) decimal.Decimal {
	return p.FinalPrice().Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// TotalPrice computes the order total as a pure function over materialized
// items and their products: round the item sum, then apply the order's
// cumulative discount and round again.
func TotalPrice(o Order, items []Item, products map[int64]product.Product) decimal.Decimal {
	subtotal := decimal.Zero
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		subtotal = subtotal.Add(ItemTotal(it, p))
	}
	subtotal = subtotal.Round(0)

	if o.DiscountPercent <= 0 {
		return subtotal
	}
	factor := decimal.NewFromInt(int64(100 - o.DiscountPercent)).Div(decimal.NewFromInt(100))
	return subtotal.Mul(factor).Round(0)
}
