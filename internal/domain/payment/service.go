package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrRejected is returned when the buyer came back from the gateway
	// without completing the charge.
	ErrRejected = errors.New("payment: rejected at gateway")
	// ErrVerificationFailed is returned when the gateway refuses to settle
	// an authority that the buyer reported as paid.
	ErrVerificationFailed = errors.New("payment: verification failed")
)

// Orders is the slice of the order service the payment flow needs.
type Orders interface {
	Total(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) error
}

// Service drives the request/callback handshake with the gateway.
type Service struct {
	gateway  Gateway
	payments Repository
	orders   Orders
	lg       *zap.Logger
}

// NewService creates a payment Service.
func NewService(gateway Gateway, payments Repository, orders Orders, lg *zap.Logger) *Service {
	return &Service{
		gateway:  gateway,
		payments: payments,
		orders:   orders,
		lg:       lg.Named("payment"),
	}
}

// Initiate opens a gateway transaction for the order's current total and
// returns the URL the buyer must be redirected to. The pending payment row
// is recorded before the redirect so an abandoned checkout stays auditable.
func (s *Service) Initiate(ctx context.Context, orderID uuid.UUID, callbackURL string) (payURL string, err error) {
	total, err := s.orders.Total(ctx, orderID)
	if err != nil {
		return "", err
	}

	authority, payURL, err := s.gateway.Request(ctx, total, callbackURL)
	if err != nil {
		return "", errors.Wrap(err, "gateway request")
	}

	p := &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Authority: authority,
		Amount:    total,
		Status:    StatusPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return "", errors.Wrap(err, "record payment")
	}

	s.lg.Info("payment initiated",
		zap.Stringer("order_id", orderID),
		zap.String("authority", authority),
		zap.String("amount", total.String()),
	)
	return payURL, nil
}

// HandleCallback settles the gateway transaction after the buyer returns.
// ok is the gateway's redirect status flag; when false the buyer backed out
// and no verification call is made. On a verified charge the order flips
// to success.
func (s *Service) HandleCallback(ctx context.Context, orderID uuid.UUID, authority string, ok bool) error {
	if !ok {
		s.record(ctx, orderID, authority, decimal.Zero, StatusFailed, nil)
		return ErrRejected
	}

	total, err := s.orders.Total(ctx, orderID)
	if err != nil {
		return err
	}

	refID, err := s.gateway.Verify(ctx, authority, total)
	if err != nil {
		s.record(ctx, orderID, authority, total, StatusFailed, nil)
		return errors.Wrapf(ErrVerificationFailed, "%v", err)
	}

	s.record(ctx, orderID, authority, total, StatusSuccess, &refID)

	if err := s.orders.MarkPaid(ctx, orderID, refID); err != nil {
		return errors.Wrap(err, "mark order paid")
	}

	s.lg.Info("payment verified",
		zap.Stringer("order_id", orderID),
		zap.String("ref_id", refID),
	)
	return nil
}

// ListByOrder returns the payment attempts recorded against one order.
func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	return s.payments.ListByOrder(ctx, orderID)
}

// record persists an attempt outcome. Failure to write the audit row must
// not mask the settlement result, so it only logs.
func (s *Service) record(ctx context.Context, orderID uuid.UUID, authority string, amount decimal.Decimal, status Status, refID *string) {
	p := &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Authority: authority,
		RefID:     refID,
		Amount:    amount,
		Status:    status,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		s.lg.Warn("record payment attempt",
			zap.Stringer("order_id", orderID),
			zap.Error(err),
		)
	}
}
