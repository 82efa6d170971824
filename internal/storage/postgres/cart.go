package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gse-shop/orderflow/internal/domain/cart"
)

const (
	upsertCartSQL = `INSERT INTO carts (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING id, owner_id, created_at`

	cartItemColumns = `id, cart_id, product_id, quantity, created_at, updated_at`

	cartItemsSQL = `SELECT ` + cartItemColumns + ` FROM cart_items
		WHERE cart_id = $1 ORDER BY created_at DESC`

	cartItemsByOwnerSQL = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at
		FROM cart_items ci JOIN carts c ON ci.cart_id = c.id
		WHERE c.owner_id = $1 ORDER BY ci.created_at DESC`

	upsertCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING id, created_at, updated_at`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the owner's cart, creating it on first use.
func (r *CartRepository) GetOrCreate(ctx context.Context, ownerID int64) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, upsertCartSQL, ownerID).Scan(&c.ID, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting cart for owner %d: %w", ownerID, err)
	}
	return &c, nil
}

// Items returns the cart's lines, newest first.
func (r *CartRepository) Items(ctx context.Context, cartID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, cartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// ItemsByOwner returns the owner's cart lines without requiring the cart id.
func (r *CartRepository) ItemsByOwner(ctx context.Context, ownerID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, cartItemsByOwnerSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items for owner %d: %w", ownerID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// UpsertItem inserts or replaces the line for (cart, product).
func (r *CartRepository) UpsertItem(ctx context.Context, item *cart.Item) error {
	err := r.pool.QueryRow(ctx, upsertCartItemSQL,
		item.CartID, item.ProductID, item.Quantity,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting cart item: %w", err)
	}
	return nil
}

// DeleteItem removes one line from the cart.
func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("deleting cart item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(cart.ErrItemNotFound, "item %d", itemID)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}
