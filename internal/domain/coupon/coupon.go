package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when a coupon's expiration date has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has no remaining uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// Coupon is a discount code with an expiration date and a remaining-usage
// counter. MaxUsageLimit counts uses still available: applying a coupon to an
// order decrements it, discarding increments it back.
type Coupon struct {
	Code            string
	DiscountPercent int
	MaxUsageLimit   int
	ExpirationDate  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Usable reports whether the coupon can be applied to a new order at the
// given instant. Coupons already attached to an order stay attached after
// this turns false; only the sweep or an explicit discard detaches them.
func (c Coupon) Usable(now time.Time) bool {
	return c.ExpirationDate.After(now) && c.MaxUsageLimit > 0
}

// Validate checks the fields an admin write must satisfy.
func (c Coupon) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("code is required")
	}
	if c.DiscountPercent < 0 || c.DiscountPercent > 100 {
		return fmt.Errorf("discount percent must be between 0 and 100")
	}
	if c.MaxUsageLimit < 0 {
		return fmt.Errorf("usage limit must not be negative")
	}
	return nil
}

// Registry provides lookup and administration of coupons. Usage-counter
// mutations happen inside the order store's transaction, together with the
// order state they pay for.
type Registry interface {
	// FindByCode returns the coupon regardless of usability.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindUsable returns the coupon only if it is currently applicable:
	// not expired and with remaining uses. Returns ErrExpired or
	// ErrUsageLimitReached otherwise.
	FindUsable(ctx context.Context, code string, now time.Time) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
