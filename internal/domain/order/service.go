package order

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

// Staff reports whether a user may act on orders they do not own
// (admins and supporters).
type Staff interface {
	IsStaff(ctx context.Context, userID int64) (bool, error)
}

// Service owns the order lifecycle: assembly from cart lines, cancellation,
// payment confirmation, item removal, and the coupon apply/discard pair.
type Service struct {
	store    Store
	carts    cart.Repository
	products product.Repository
	staff    Staff
	now      func() time.Time
	lg       *zap.Logger
}

// NewService creates an order Service.
func NewService(store Store, carts cart.Repository, products product.Repository, staff Staff, lg *zap.Logger) *Service {
	return &Service{
		store:    store,
		carts:    carts,
		products: products,
		staff:    staff,
		now:      time.Now,
		lg:       lg,
	}
}

// CreateOrder converts the owner's validated cart lines into a pending order.
//
// The request must repeat the cart exactly (see cart.ValidateCheckout). The
// conversion is one transaction: lock the referenced products in ascending id
// order, decrement their stock all-or-nothing, delete the consumed cart
// lines, and persist the order with its items. Any failure rolls back
// everything; a partial order is never observable.
func (s *Service) CreateOrder(ctx context.Context, ownerID int64, lines []cart.Line) (*Order, error) {
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.ProductID]; dup {
			return nil, &cart.FieldError{Field: "product", Message: "duplicate product in order lines"}
		}
		seen[line.ProductID] = struct{}{}
	}

	items, err := s.carts.ItemsByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if err := cart.ValidateCheckout(lines, items); err != nil {
		return nil, err
	}

	// Fixed lock-acquisition order across all checkouts.
	sorted := make([]cart.Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	ids := make([]int64, len(sorted))
	for i, line := range sorted {
		ids[i] = line.ProductID
	}

	o := &Order{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Status:  StatusPending,
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]*product.Product, len(locked))
		for i := range locked {
			byID[locked[i].ID] = &locked[i]
		}

		for _, line := range sorted {
			p, ok := byID[line.ProductID]
			if !ok {
				return errors.Wrapf(product.ErrNotFound, "product %d", line.ProductID)
			}
			remaining := p.Quantity - line.Quantity
			if remaining < 0 {
				return &InsufficientStockError{
					ProductID: p.ID,
					Requested: line.Quantity,
					Available: p.Quantity,
				}
			}
			p.SetQuantity(remaining)
		}

		if err := tx.UpdateProductQuantities(ctx, locked); err != nil {
			return errors.Wrap(err, "persist quantities")
		}
		if err := tx.DeleteCartLines(ctx, ownerID, sorted); err != nil {
			return errors.Wrap(err, "consume cart lines")
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		orderItems := make([]Item, len(sorted))
		for i, line := range sorted {
			orderItems[i] = Item{
				OrderID:   o.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			}
		}
		return errors.Wrap(tx.InsertItems(ctx, orderItems), "insert order items")
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("order created",
		zap.Stringer("order_id", o.ID),
		zap.Int64("owner_id", ownerID),
		zap.Int("lines", len(sorted)))
	return o, nil
}

// Cancel transitions a pending order to cancelled, compensating the
// reservation made at assembly time: every item's quantity is restored to
// its product and an attached coupon is discarded, all in one transaction.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, requesterID int64) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, o, requesterID); err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPending
		}

		items, err := tx.Items(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "read order items")
		}
		if err := restoreStock(ctx, tx, items); err != nil {
			return err
		}

		if o.CouponCode != nil {
			if err := detachCoupon(ctx, tx, o); err != nil {
				return err
			}
		}

		o.Status = StatusCancelled
		return errors.Wrap(tx.UpdateOrder(ctx, o), "update order")
	})
	if err != nil {
		return err
	}

	s.lg.Info("order cancelled", zap.Stringer("order_id", orderID))
	return nil
}

// MarkPaid transitions a pending order to success after the payment
// collaborator has verified the transaction externally. Pure status flip:
// inventory was already committed at assembly time.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPending
		}
		o.Status = StatusSuccess
		return errors.Wrap(tx.UpdateOrder(ctx, o), "update order")
	})
	if err != nil {
		return err
	}

	s.lg.Info("order paid",
		zap.Stringer("order_id", orderID),
		zap.String("payment_ref", paymentRef))
	return nil
}

// RemoveItem deletes one item from a pending order and restores its
// reserved quantity. When the last item goes, the order itself is deleted
// rather than left as an empty husk; an attached coupon is released first.
func (s *Service) RemoveItem(ctx context.Context, orderID uuid.UUID, itemID int64, requesterID int64) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, o, requesterID); err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPending
		}

		items, err := tx.Items(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "read order items")
		}
		var removed *Item
		for i := range items {
			if items[i].ID == itemID {
				removed = &items[i]
				break
			}
		}
		if removed == nil {
			return ErrItemNotFound
		}

		if err := restoreStock(ctx, tx, []Item{*removed}); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, orderID, itemID); err != nil {
			return errors.Wrap(err, "delete order item")
		}

		// Post-mutation check: an order with zero items must not exist.
		if len(items) == 1 {
			if o.CouponCode != nil {
				if err := detachCoupon(ctx, tx, o); err != nil {
					return err
				}
			}
			return errors.Wrap(tx.DeleteOrder(ctx, orderID), "delete empty order")
		}
		return errors.Wrap(tx.UpdateOrder(ctx, o), "update order")
	})
}

// View is a fully materialized order for read endpoints: items joined with
// their products and the computed total.
type View struct {
	Order    Order
	Items    []Item
	Products map[int64]product.Product
	Total    decimal.Decimal
}

// Get returns the materialized view of one order. Requesters see only their
// own orders unless they are staff.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID, requesterID int64) (*View, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, o, requesterID); err != nil {
		return nil, err
	}
	return s.view(ctx, o)
}

// Total returns the order's current total without an ownership check.
// For internal collaborators only (the payment service charges it).
func (s *Service) Total(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := s.view(ctx, o)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Total, nil
}

func (s *Service) view(ctx context.Context, o *Order) (*View, error) {
	items, err := s.store.GetItems(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "read order items")
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	ps, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "read products")
	}
	byID := make(map[int64]product.Product, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
	}

	return &View{
		Order:    *o,
		Items:    items,
		Products: byID,
		Total:    TotalPrice(*o, items, byID),
	}, nil
}

// ListByOwner returns the owner's orders, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]Order, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// authorize hides foreign orders behind ErrNotFound so a requester cannot
// probe for other users' order ids.
func (s *Service) authorize(ctx context.Context, o *Order, requesterID int64) error {
	if o.OwnerID == requesterID {
		return nil
	}
	ok, err := s.staff.IsStaff(ctx, requesterID)
	if err != nil {
		return errors.Wrap(err, "staff lookup")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// restoreStock mirrors the assembly-time decrement: quantity += reserved,
// locking products in the same ascending-id order as checkout. No cap
// re-check on restore; the mirror must be exact.
func restoreStock(ctx context.Context, tx Tx, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	qtyByProduct := make(map[int64]int, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := qtyByProduct[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		qtyByProduct[it.ProductID] += it.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return err
	}
	for i := range locked {
		locked[i].SetQuantity(locked[i].Quantity + qtyByProduct[locked[i].ID])
	}
	return errors.Wrap(tx.UpdateProductQuantities(ctx, locked), "restore quantities")
}

// detachCoupon is the in-transaction discard: subtract the coupon's percent
// (floored at zero), clear the reference, and return one use to the counter.
func detachCoupon(ctx context.Context, tx Tx, o *Order) error {
	code := *o.CouponCode
	c, err := tx.LockCoupon(ctx, code)
	if err != nil {
		return errors.Wrapf(err, "lock coupon %q", code)
	}

	o.DiscountPercent -= c.DiscountPercent
	if o.DiscountPercent < 0 {
		o.DiscountPercent = 0
	}
	o.CouponCode = nil
	return errors.Wrapf(tx.AdjustCouponUsage(ctx, code, +1), "release coupon %q", code)
}
