package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxStock is the soft upper bound on a product's stored quantity. Admin
// writes are validated against it; stock restored by a cancellation is not,
// so that cancelling remains the exact inverse of the reservation.
const MaxStock = 1000

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry with a finite stock counter.
//
// Available is maintained as a pure function of Quantity: every write path
// recomputes it so a product with zero stock is never listed as available.
type Product struct {
	ID              int64
	Title           string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent int
	Available       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FinalPrice returns the unit price after the product's own discount,
// rounded to whole rials.
func (p Product) FinalPrice() decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.UnitPrice.Round(0)
	}
	factor := decimal.NewFromInt(int64(100 - p.DiscountPercent)).Div(decimal.NewFromInt(100))
	return p.UnitPrice.Mul(factor).Round(0)
}

// SetQuantity updates the stock counter and recomputes Available.
func (p *Product) SetQuantity(q int) {
	p.Quantity = q
	p.Available = q > 0
}

// Validate checks the fields an admin write must satisfy.
func (p Product) Validate() error {
	if p.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if p.Quantity > MaxStock {
		return fmt.Errorf("quantity must not exceed %d", MaxStock)
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return fmt.Errorf("discount percent must be between 0 and 100")
	}
	if p.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative")
	}
	return nil
}

// Repository defines read access to the product catalog. Stock mutations go
// through the order store's transaction so they always happen under row locks.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
}
