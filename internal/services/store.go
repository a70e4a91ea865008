package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/libraryhub/backend/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// expectOneRow turns a conditional UPDATE that matched nothing into errNone
func expectOneRow(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNone
	}
	return nil
}

// checkFineHolds refuses a delete that would cascade into PENDING or PAID fines. filter is a
// condition on the fines f joined with their transactions t, taking id as $1.
func checkFineHolds(ctx context.Context, q queryer, filter string, id int64) error {
	query := `SELECT COUNT(*) FROM fines f JOIN transactions t ON t.id = f.transaction_id
		WHERE ` + filter + ` AND f.status = $2`

	pending, err := countRows(ctx, q, query, id, models.FinePending)
	if err != nil {
		return err
	}
	if pending > 0 {
		return ErrHasPendingFines
	}
	paid, err := countRows(ctx, q, query, id, models.FinePaid)
	if err != nil {
		return err
	}
	if paid > 0 {
		return ErrHasPaidFines
	}
	return nil
}

func countRows(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
