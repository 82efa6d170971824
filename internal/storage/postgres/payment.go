package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gse-shop/orderflow/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, authority_id, ref_id, amount, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	paymentsByOrderSQL = `SELECT id, order_id, authority_id, ref_id, amount, status, created_at
FROM payments
WHERE order_id = $1
ORDER BY created_at DESC`
)

// PaymentRepository stores gateway transaction attempts.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

var _ payment.Repository = (*PaymentRepository)(nil)

// NewPaymentRepository creates a PaymentRepository backed by pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts the payment attempt and fills in its creation time.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.pool.QueryRow(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Authority, p.RefID, p.Amount, p.Status,
	).Scan(&p.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

// ListByOrder returns all attempts against one order, newest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, paymentsByOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query payments")
	}
	out, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, errors.Wrap(err, "collect payments")
	}
	return out, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Authority, &p.RefID, &p.Amount, &p.Status, &p.CreatedAt)
	return p, err
}
