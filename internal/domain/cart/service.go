package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/gse-shop/orderflow/internal/domain/product"
)

// Service implements cart maintenance: adding, updating, and removing lines.
// Every write re-checks the line against current product stock so a persisted
// cart line never exceeds what the warehouse holds.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// AddItem adds quantity of a product to the owner's cart, merging with an
// existing line for the same product.
func (s *Service) AddItem(ctx context.Context, ownerID, productID int64, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, &FieldError{Field: "quantity", Message: "quantity must be greater than 0"}
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}

	line := Item{CartID: c.ID, ProductID: productID, Quantity: quantity}
	for _, it := range items {
		if it.ProductID == productID {
			line = it
			line.Quantity += quantity
			break
		}
	}

	if line.Quantity > p.Quantity {
		return nil, &FieldError{
			Field:   "quantity",
			Message: "this quantity of this product is not in stock",
		}
	}

	if err := s.carts.UpsertItem(ctx, &line); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	return &line, nil
}

// UpdateItem sets a cart line to an absolute quantity. Quantity 0 deletes
// the line instead of persisting an empty row.
func (s *Service) UpdateItem(ctx context.Context, ownerID, itemID int64, quantity int) error {
	if quantity < 0 {
		return &FieldError{Field: "quantity", Message: "quantity must not be negative"}
	}

	c, err := s.carts.GetOrCreate(ctx, ownerID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}

	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "list cart items")
	}

	var line *Item
	for i := range items {
		if items[i].ID == itemID {
			line = &items[i]
			break
		}
	}
	if line == nil {
		return ErrItemNotFound
	}

	if quantity == 0 {
		return s.carts.DeleteItem(ctx, c.ID, itemID)
	}

	p, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return err
	}
	if quantity > p.Quantity {
		return &FieldError{
			Field:   "quantity",
			Message: "this quantity of this product is not in stock",
		}
	}

	line.Quantity = quantity
	return s.carts.UpsertItem(ctx, line)
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID int64) error {
	c, err := s.carts.GetOrCreate(ctx, ownerID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	return s.carts.DeleteItem(ctx, c.ID, itemID)
}
