package postgres

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gse-shop/orderflow/internal/domain/order"
)

// translateContention maps lock-wait timeouts and deadlocks onto the
// retryable order.ErrContention before the error leaves the store. All
// other errors pass through unchanged.
func translateContention(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: %v", order.ErrContention, err)
		}
	}
	return err
}
