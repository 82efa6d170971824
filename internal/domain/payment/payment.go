// Package payment records gateway transactions against orders and flips
// an order to success once the gateway confirms the charge.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of one gateway transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Payment is one attempt to charge an order through the gateway.
// Authority is the gateway's transaction handle; RefID is the bank
// reference returned only on a verified charge.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Authority string          `json:"authority"`
	RefID     *string         `json:"ref_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository persists payment attempts.
type Repository interface {
	// Create inserts the payment and fills in its generated fields.
	Create(ctx context.Context, p *Payment) error
	// ListByOrder returns all attempts against one order, newest first.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
}

// Gateway is the external payment processor. Request opens a transaction
// for the given amount and returns the authority handle plus the URL the
// buyer is redirected to; Verify settles it after the buyer returns.
type Gateway interface {
	Request(ctx context.Context, amount decimal.Decimal, callbackURL string) (authority, payURL string, err error)
	Verify(ctx context.Context, authority string, amount decimal.Decimal) (refID string, err error)
}
