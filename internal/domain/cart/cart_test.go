package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gse-shop/orderflow/internal/domain/product"
)

// --- Mock implementations ---

type mockCartRepo struct {
	cart    Cart
	items   []Item
	nextID  int64
	deleted []int64
}

func (m *mockCartRepo) GetOrCreate(_ context.Context, ownerID int64) (*Cart, error) {
	m.cart.OwnerID = ownerID
	if m.cart.ID == 0 {
		m.cart.ID = 1
	}
	return &m.cart, nil
}

func (m *mockCartRepo) Items(_ context.Context, _ int64) ([]Item, error) {
	return m.items, nil
}

func (m *mockCartRepo) ItemsByOwner(_ context.Context, _ int64) ([]Item, error) {
	return m.items, nil
}

func (m *mockCartRepo) UpsertItem(_ context.Context, item *Item) error {
	if item.ID == 0 {
		m.nextID++
		item.ID = m.nextID
		m.items = append(m.items, *item)
		return nil
	}
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = *item
		}
	}
	return nil
}

func (m *mockCartRepo) DeleteItem(_ context.Context, _, itemID int64) error {
	m.deleted = append(m.deleted, itemID)
	for i := range m.items {
		if m.items[i].ID == itemID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	return nil
}

type mockProductRepo struct {
	byID map[int64]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, _ []int64) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }

func newProduct(id int64, quantity int, price string) *product.Product {
	return &product.Product{
		ID:        id,
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(price),
		Available: quantity > 0,
	}
}

// --- Checkout validation ---

func TestValidateCheckout_EmptyLines(t *testing.T) {
	err := ValidateCheckout(nil, []Item{{ProductID: 1, Quantity: 2}})

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "items", fe.Field)
}

func TestValidateCheckout_ProductNotInCart(t *testing.T) {
	lines := []Line{{ProductID: 7, Quantity: 1}}
	err := ValidateCheckout(lines, []Item{{ProductID: 1, Quantity: 1}})

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "product", fe.Field)
}

func TestValidateCheckout_QuantityMismatchRejected(t *testing.T) {
	// Cart holds qty=3; requesting qty=2 must fail, not be adjusted.
	lines := []Line{{ProductID: 1, Quantity: 2}}
	err := ValidateCheckout(lines, []Item{{ProductID: 1, Quantity: 3}})

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "quantity", fe.Field)
}

func TestValidateCheckout_ExactMatch(t *testing.T) {
	lines := []Line{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 1},
	}
	items := []Item{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 1},
		{ProductID: 3, Quantity: 5}, // extra cart lines are fine
	}
	require.NoError(t, ValidateCheckout(lines, items))
}

// --- Totals ---

func TestTotalPrice(t *testing.T) {
	items := []Item{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}
	products := map[int64]product.Product{
		1: {ID: 1, UnitPrice: decimal.RequireFromString("100000")},
		2: {ID: 2, UnitPrice: decimal.RequireFromString("50000"), DiscountPercent: 10},
	}

	// 2*100000 + 1*45000
	assert.True(t, decimal.RequireFromString("245000").Equal(TotalPrice(items, products)))
}

// --- Cart service ---

func TestAddItem_NewLine(t *testing.T) {
	products := &mockProductRepo{byID: map[int64]*product.Product{
		1: newProduct(1, 10, "100000"),
	}}
	repo := &mockCartRepo{}
	svc := NewService(repo, products)

	item, err := svc.AddItem(context.Background(), 42, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	assert.Len(t, repo.items, 1)
}

func TestAddItem_MergesExistingLine(t *testing.T) {
	products := &mockProductRepo{byID: map[int64]*product.Product{
		1: newProduct(1, 10, "100000"),
	}}
	repo := &mockCartRepo{items: []Item{{ID: 5, CartID: 1, ProductID: 1, Quantity: 4}}}
	svc := NewService(repo, products)

	item, err := svc.AddItem(context.Background(), 42, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.ID)
	assert.Equal(t, 7, item.Quantity)
}

func TestAddItem_ExceedsStock(t *testing.T) {
	products := &mockProductRepo{byID: map[int64]*product.Product{
		1: newProduct(1, 5, "100000"),
	}}
	repo := &mockCartRepo{items: []Item{{ID: 5, CartID: 1, ProductID: 1, Quantity: 4}}}
	svc := NewService(repo, products)

	_, err := svc.AddItem(context.Background(), 42, 1, 2)

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "quantity", fe.Field)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	svc := NewService(&mockCartRepo{}, &mockProductRepo{byID: map[int64]*product.Product{}})

	_, err := svc.AddItem(context.Background(), 42, 99, 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestUpdateItem_ZeroQuantityDeletes(t *testing.T) {
	products := &mockProductRepo{byID: map[int64]*product.Product{
		1: newProduct(1, 10, "100000"),
	}}
	repo := &mockCartRepo{items: []Item{{ID: 5, CartID: 1, ProductID: 1, Quantity: 4}}}
	svc := NewService(repo, products)

	require.NoError(t, svc.UpdateItem(context.Background(), 42, 5, 0))
	assert.Contains(t, repo.deleted, int64(5))
	assert.Empty(t, repo.items)
}

func TestUpdateItem_NotFound(t *testing.T) {
	svc := NewService(&mockCartRepo{}, &mockProductRepo{})

	err := svc.UpdateItem(context.Background(), 42, 5, 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}
