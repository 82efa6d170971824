package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/product"
)

// ErrItemNotFound is returned when a cart line does not exist.
var ErrItemNotFound = errors.New("cart item not found")

// FieldError is a validation failure tagged with the offending input field,
// surfaced to the caller as-is and never retried.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Cart is a user's staging area for a future order. One cart per user;
// lines are deleted once they are converted into an order.
type Cart struct {
	ID        int64
	OwnerID   int64
	CreatedAt time.Time
}

// Item is a single (product, quantity) line in a cart.
type Item struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is a (product, quantity) pair as submitted by a checkout request.
type Line struct {
	ProductID int64
	Quantity  int
}

// TotalPrice sums quantity * final price over the cart lines, rounded to
// whole rials. Products missing from the map contribute nothing; callers
// materialize both collections from the same repository read.
func TotalPrice(items []Item, products map[int64]product.Product) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		total = total.Add(p.FinalPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(0)
}

// Repository defines persistence for carts and their lines.
type Repository interface {
	GetOrCreate(ctx context.Context, ownerID int64) (*Cart, error)
	Items(ctx context.Context, cartID int64) ([]Item, error)
	ItemsByOwner(ctx context.Context, ownerID int64) ([]Item, error)
	UpsertItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, cartID, itemID int64) error
}
