package stock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, NewTxRepository(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListLevels returns every product row held by the warehouse.
func (r *Repository) ListLevels(ctx context.Context, warehouseID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.warehouse_id, s.product_id, p.name, s.quantity, s.updated_at
FROM stock s JOIN products p ON p.id = s.product_id
WHERE s.warehouse_id = $1 ORDER BY p.name`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.WarehouseID, &e.ProductID, &e.ProductName, &e.Quantity, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds stock primitives to an open transaction owned by the caller.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) LockLevels(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, quantity FROM stock
WHERE warehouse_id = $1 AND product_id = ANY($2)
ORDER BY product_id
FOR UPDATE`, warehouseID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := make(map[int64]int64, len(productIDs))
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		levels[productID] = qty
	}
	return levels, rows.Err()
}

func (r *txRepo) Decrement(ctx context.Context, warehouseID int64, lines []Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`UPDATE stock SET quantity = quantity - $3, updated_at = NOW()
WHERE warehouse_id = $1 AND product_id = $2 AND quantity >= $3`, warehouseID, l.ProductID, l.Quantity)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	for _, l := range lines {
		tag, err := results.Exec()
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: product %d", ErrStockChanged, l.ProductID)
		}
	}
	return results.Close()
}

func (r *txRepo) Increment(ctx context.Context, warehouseID int64, lines []Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO stock (warehouse_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity, updated_at = NOW()`, warehouseID, l.ProductID, l.Quantity)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}
