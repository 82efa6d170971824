package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const staffIDsSQL = `SELECT user_id FROM staff_users`

// StaffLoader returns a loader that reads the staff id set from storage.
// Feed it to authz.NewStaffCache.
func StaffLoader(pool *pgxpool.Pool) func(ctx context.Context) ([]int64, error) {
	return func(ctx context.Context) ([]int64, error) {
		rows, err := pool.Query(ctx, staffIDsSQL)
		if err != nil {
			return nil, errors.Wrap(err, "query staff ids")
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return nil, errors.Wrap(err, "collect staff ids")
		}
		return ids, nil
	}
}
