package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gse-shop/orderflow/internal/domain/coupon"
)

// sweepConcurrency bounds how many per-order discards run at once during a
// maintenance sweep.
const sweepConcurrency = 4

// ApplyCoupon attaches a usable coupon to a pending order. Atomic effect:
// the order's discount grows by the coupon's percent (rejected past 100),
// the coupon reference is set, and one use is taken from the counter.
// A second application attempt is rejected, never stacked.
func (s *Service) ApplyCoupon(ctx context.Context, orderID uuid.UUID, code string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPending
		}
		if o.CouponCode != nil {
			return ErrCouponAlreadyApplied
		}

		c, err := tx.LockCoupon(ctx, code)
		if err != nil {
			return err
		}
		now := s.now()
		if !c.ExpirationDate.After(now) {
			return coupon.ErrExpired
		}
		if c.MaxUsageLimit <= 0 {
			return coupon.ErrUsageLimitReached
		}

		if o.DiscountPercent+c.DiscountPercent > 100 {
			return ErrDiscountOverflow
		}
		o.DiscountPercent += c.DiscountPercent
		o.CouponCode = &c.Code

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		return errors.Wrapf(tx.AdjustCouponUsage(ctx, code, -1), "consume coupon %q", code)
	})
	if err != nil {
		return err
	}

	s.lg.Info("coupon applied",
		zap.Stringer("order_id", orderID),
		zap.String("code", code))
	return nil
}

// DiscardCoupon detaches the order's coupon: the exact algebraic inverse of
// ApplyCoupon. Safe to call from the user-facing endpoint, the cancellation
// path, and the expiry sweep.
func (s *Service) DiscardCoupon(ctx context.Context, orderID uuid.UUID, code string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPending
		}
		if o.CouponCode == nil {
			return ErrNoCouponApplied
		}
		if *o.CouponCode != code {
			return ErrCouponMismatch
		}

		if err := detachCoupon(ctx, tx, o); err != nil {
			return err
		}
		return errors.Wrap(tx.UpdateOrder(ctx, o), "update order")
	})
	if err != nil {
		return err
	}

	s.lg.Info("coupon discarded",
		zap.Stringer("order_id", orderID),
		zap.String("code", code))
	return nil
}

// SweepExpiredCoupons force-discards coupons that expired while attached to
// pending orders, restoring each order's discount and the coupon's counter.
// Each per-order discard is its own transaction; failures are logged and
// skipped so the next scheduled run can retry them. Returns the ids of the
// orders actually swept.
func (s *Service) SweepExpiredCoupons(ctx context.Context) ([]uuid.UUID, error) {
	stale, err := s.store.PendingWithExpiredCoupon(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "find expired coupons")
	}

	var (
		mu       sync.Mutex
		affected []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, o := range stale {
		if o.CouponCode == nil {
			continue
		}
		g.Go(func() error {
			if err := s.DiscardCoupon(gctx, o.ID, *o.CouponCode); err != nil {
				s.lg.Warn("sweep: discard failed",
					zap.Stringer("order_id", o.ID),
					zap.String("code", *o.CouponCode),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			affected = append(affected, o.ID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(affected) > 0 {
		s.lg.Info("sweep: expired coupons discarded", zap.Int("orders", len(affected)))
	}
	return affected, nil
}
