package order

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

// memStore is an in-memory Store with transactional rollback: InTx runs fn
// against a deep copy of the state and commits the copy only on success,
// mirroring the all-or-nothing behaviour of the real pgx store.
type memStore struct {
	products  map[int64]product.Product
	cartItems []cart.Item
	orders    map[uuid.UUID]Order
	items     map[uuid.UUID][]Item
	coupons   map[string]coupon.Coupon
	nextItem  int64

	failInsertItems bool
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]product.Product),
		orders:   make(map[uuid.UUID]Order),
		items:    make(map[uuid.UUID][]Item),
		coupons:  make(map[string]coupon.Coupon),
	}
}

func (m *memStore) snapshot() *memStore {
	cp := newMemStore()
	cp.failInsertItems = m.failInsertItems
	cp.nextItem = m.nextItem
	for k, v := range m.products {
		cp.products[k] = v
	}
	cp.cartItems = append(cp.cartItems, m.cartItems...)
	for k, v := range m.orders {
		cp.orders[k] = v
	}
	for k, v := range m.items {
		cp.items[k] = append([]Item(nil), v...)
	}
	for k, v := range m.coupons {
		cp.coupons[k] = v
	}
	return cp
}

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	work := m.snapshot()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	*m = *work
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) GetItems(_ context.Context, orderID uuid.UUID) ([]Item, error) {
	return append([]Item(nil), m.items[orderID]...), nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerID int64) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) PendingWithExpiredCoupon(_ context.Context, now time.Time) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.Status != StatusPending || o.CouponCode == nil {
			continue
		}
		c, ok := m.coupons[*o.CouponCode]
		if ok && !c.ExpirationDate.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockProducts(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) UpdateProductQuantities(_ context.Context, ps []product.Product) error {
	for _, p := range ps {
		t.s.products[p.ID] = p
	}
	return nil
}

func (t *memTx) DeleteCartLines(_ context.Context, _ int64, lines []cart.Line) error {
	keep := t.s.cartItems[:0]
	for _, it := range t.s.cartItems {
		consumed := false
		for _, line := range lines {
			if it.ProductID == line.ProductID && it.Quantity == line.Quantity {
				consumed = true
				break
			}
		}
		if !consumed {
			keep = append(keep, it)
		}
	}
	t.s.cartItems = keep
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) InsertItems(_ context.Context, items []Item) error {
	if t.s.failInsertItems {
		return errTxBoom
	}
	for _, it := range items {
		t.s.nextItem++
		it.ID = t.s.nextItem
		t.s.items[it.OrderID] = append(t.s.items[it.OrderID], it)
	}
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) Items(_ context.Context, orderID uuid.UUID) ([]Item, error) {
	return append([]Item(nil), t.s.items[orderID]...), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *Order) error {
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, orderID uuid.UUID, itemID int64) error {
	items := t.s.items[orderID]
	for i := range items {
		if items[i].ID == itemID {
			t.s.items[orderID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (t *memTx) DeleteOrder(_ context.Context, id uuid.UUID) error {
	delete(t.s.orders, id)
	delete(t.s.items, id)
	return nil
}

func (t *memTx) LockCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := t.s.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (t *memTx) AdjustCouponUsage(_ context.Context, code string, delta int) error {
	c, ok := t.s.coupons[code]
	if !ok {
		return coupon.ErrNotFound
	}
	c.MaxUsageLimit += delta
	t.s.coupons[code] = c
	return nil
}

// memCartRepo serves the cart reads CreateOrder validates against, backed by
// the same memStore state the tx mutates.
type memCartRepo struct {
	s *memStore
}

func (r *memCartRepo) GetOrCreate(_ context.Context, ownerID int64) (*cart.Cart, error) {
	return &cart.Cart{ID: 1, OwnerID: ownerID}, nil
}

func (r *memCartRepo) Items(_ context.Context, _ int64) ([]cart.Item, error) {
	return append([]cart.Item(nil), r.s.cartItems...), nil
}

func (r *memCartRepo) ItemsByOwner(_ context.Context, _ int64) ([]cart.Item, error) {
	return append([]cart.Item(nil), r.s.cartItems...), nil
}

func (r *memCartRepo) UpsertItem(_ context.Context, item *cart.Item) error {
	r.s.cartItems = append(r.s.cartItems, *item)
	return nil
}

func (r *memCartRepo) DeleteItem(_ context.Context, _, _ int64) error { return nil }

type memProductRepo struct {
	s *memStore
}

func (r *memProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (r *memProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *memProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }

type staticStaff struct {
	ids map[int64]bool
}

func (s *staticStaff) IsStaff(_ context.Context, userID int64) (bool, error) {
	return s.ids[userID], nil
}
