package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, approvals *shared.ApprovalRecorder) *Repository {
	return &Repository{pool: pool, approvals: approvals}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx, r.approvals))
	})
}

// Get loads one order.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// List returns a page of orders matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("order_status = $%d", string(filter.Status))
	}
	if filter.PartyID != 0 {
		add("party_id = $%d", filter.PartyID)
	}
	if filter.PlacedBy != 0 {
		add("placed_by = $%d", filter.PlacedBy)
	}
	if filter.Warehouse != 0 {
		add("assigned_warehouse = $%d", filter.Warehouse)
	}
	if filter.StaffID != 0 {
		add("assigned_warehouse IN (SELECT id FROM warehouses WHERE plant_head_id = $%[1]d OR accountant_id = $%[1]d)", filter.StaffID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// History returns the approval trail of an order.
func (r *Repository) History(ctx context.Context, id string) ([]shared.ApprovalLog, error) {
	return r.approvals.List(ctx, r.pool, Module, id)
}

const orderColumns = `id, party_id, party_snapshot, items, gross_amount, discount, total_amount,
advance_amount, due_amount, paid_amount, order_status, payment_status, advance_payment_status, due_payment_status,
advance_proof_url, invoice_url, placed_by, forwarded_by_manager, forwarded_by_authorizer, approved_by,
assigned_warehouse, dispatch_info, delivered_at, canceled_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, payment, advance, due string
	var manager, authorizer, approver, warehouse pgtype.Int8
	err := row.Scan(&o.ID, &o.PartyID, &o.Party, &o.Items, &o.GrossAmount, &o.Discount, &o.TotalAmount,
		&o.AdvanceAmount, &o.DueAmount, &o.PaidAmount, &status, &payment, &advance, &due,
		&o.AdvanceProofURL, &o.InvoiceURL, &o.PlacedBy, &manager, &authorizer, &approver,
		&warehouse, &o.Dispatch, &o.DeliveredAt, &o.CanceledBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payment)
	o.AdvanceStatus = AdvanceStatus(advance)
	o.DueStatus = DueStatus(due)
	o.ForwardedByManager = manager.Int64
	o.ForwardedByAuthorizer = authorizer.Int64
	o.ApprovedBy = approver.Int64
	o.AssignedWarehouse = warehouse.Int64
	return o, nil
}

func nullable(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

type txRepo struct {
	tx        pgx.Tx
	approvals *shared.ApprovalRecorder
}

// NewTxRepository binds order primitives to an open transaction.
func NewTxRepository(tx pgx.Tx, approvals *shared.ApprovalRecorder) TxRepository {
	return &txRepo{tx: tx, approvals: approvals}
}

func (r *txRepo) Insert(ctx context.Context, o Order) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		o.ID, o.PartyID, o.Party, o.Items, o.GrossAmount, o.Discount, o.TotalAmount,
		o.AdvanceAmount, o.DueAmount, o.PaidAmount, string(o.Status), string(o.PaymentStatus), string(o.AdvanceStatus), string(o.DueStatus),
		o.AdvanceProofURL, o.InvoiceURL, o.PlacedBy, nullable(o.ForwardedByManager), nullable(o.ForwardedByAuthorizer), nullable(o.ApprovedBy),
		nullable(o.AssignedWarehouse), o.Dispatch, o.DeliveredAt, o.CanceledBy, o.CreatedAt, o.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: order %s already exists", shared.ErrConflict, o.ID)
	}
	return err
}

func (r *txRepo) Lock(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) Save(ctx context.Context, o Order, expected Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET
    advance_amount = $3, due_amount = $4, paid_amount = $5, order_status = $6, payment_status = $7,
    advance_payment_status = $8, due_payment_status = $9, advance_proof_url = $10, invoice_url = $11,
    forwarded_by_manager = $12, forwarded_by_authorizer = $13, approved_by = $14, assigned_warehouse = $15,
    dispatch_info = $16, delivered_at = $17, canceled_by = $18, updated_at = $19
WHERE id = $1 AND order_status = $2`,
		o.ID, string(expected),
		o.AdvanceAmount, o.DueAmount, o.PaidAmount, string(o.Status), string(o.PaymentStatus),
		string(o.AdvanceStatus), string(o.DueStatus), o.AdvanceProofURL, o.InvoiceURL,
		nullable(o.ForwardedByManager), nullable(o.ForwardedByAuthorizer), nullable(o.ApprovedBy), nullable(o.AssignedWarehouse),
		o.Dispatch, o.DeliveredAt, o.CanceledBy, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *txRepo) Delete(ctx context.Context, id string, expected Status) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND order_status = $2`, id, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *txRepo) ProductNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (r *txRepo) Parties() parties.TxRepository {
	return parties.NewTxRepository(r.tx)
}

func (r *txRepo) Stock() stock.TxRepository {
	return stock.NewTxRepository(r.tx)
}

func (r *txRepo) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	return r.approvals.Record(ctx, r.tx, log)
}
