package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedflow/feedflow/internal/orders"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/shared"
)

// Repository persists the payment ledger in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, approvals *shared.ApprovalRecorder) *Repository {
	return &Repository{pool: pool, approvals: approvals}
}

// WithTx executes fn inside a repeatable-read transaction that also carries
// the order primitives.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, orders: orders.NewTxRepository(tx, r.approvals)})
	})
}

// History lists payment rows, newest first.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Record, int, error) {
	var where []string
	var args []any
	if filter.SalesmanID != 0 {
		args = append(args, filter.SalesmanID)
		where = append(where, fmt.Sprintf("salesman_id = $%d", len(args)))
	}
	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		where = append(where, fmt.Sprintf("order_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_history`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))
	query := fmt.Sprintf(`SELECT id, order_id, salesman_id, amount, mode, recorded_by, paid_at
FROM payment_history%s ORDER BY paid_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var mode string
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.SalesmanID, &rec.Amount, &mode, &rec.RecordedBy, &rec.PaidAt); err != nil {
			return nil, 0, err
		}
		rec.Mode = Mode(mode)
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

type txRepo struct {
	tx     pgx.Tx
	orders orders.TxRepository
}

func (r *txRepo) Orders() orders.TxRepository {
	return r.orders
}

func (r *txRepo) Append(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_history (order_id, salesman_id, amount, mode, recorded_by, paid_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.OrderID, rec.SalesmanID, rec.Amount, string(rec.Mode), rec.RecordedBy, rec.PaidAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append payment: %w", err)
	}
	return id, nil
}
