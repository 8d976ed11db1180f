package stock

import (
	"context"
	"fmt"
	"sort"

	"github.com/feedflow/feedflow/internal/shared"
)

// TxRepository exposes the transactional stock primitives.
type TxRepository interface {
	// LockLevels returns current quantities for productIDs and holds row locks until commit.
	// Products with no stock row are absent from the map.
	LockLevels(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]int64, error)
	// Decrement subtracts every line in one batch. A line whose guard fails returns ErrStockChanged.
	Decrement(ctx context.Context, warehouseID int64, lines []Line) error
	// Increment adds every line in one batch, creating missing rows.
	Increment(ctx context.Context, warehouseID int64, lines []Line) error
}

// Merge sums quantities per product and orders the result by product id.
func Merge(lines []Line) ([]Line, error) {
	totals := make(map[int64]int64, len(lines))
	for _, l := range lines {
		if l.ProductID == 0 {
			return nil, shared.Validationf("product id required")
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, l.ProductID)
		}
		totals[l.ProductID] += l.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// Shortfalls lists every line the levels cannot cover.
func Shortfalls(levels map[int64]int64, lines []Line) []shared.Shortfall {
	var out []shared.Shortfall
	for _, l := range lines {
		available := levels[l.ProductID]
		if available < l.Quantity {
			out = append(out, shared.Shortfall{ProductID: l.ProductID, Requested: l.Quantity, Available: available})
		}
	}
	return out
}

// Commit checks every line against the locked warehouse levels and decrements
// them all, or none. A shortfall returns *shared.StockShortfallError listing
// every uncovered product.
func Commit(ctx context.Context, tx TxRepository, warehouseID int64, lines []Line) error {
	if warehouseID == 0 {
		return shared.Validationf("warehouse id required")
	}
	merged, err := Merge(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return shared.Validationf("no lines to commit")
	}
	ids := make([]int64, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}
	levels, err := tx.LockLevels(ctx, warehouseID, ids)
	if err != nil {
		return fmt.Errorf("stock: lock levels: %w", err)
	}
	if shortfalls := Shortfalls(levels, merged); len(shortfalls) > 0 {
		return &shared.StockShortfallError{WarehouseID: warehouseID, Items: shortfalls}
	}
	if err := tx.Decrement(ctx, warehouseID, merged); err != nil {
		return fmt.Errorf("stock: decrement: %w", err)
	}
	return nil
}

// Release returns previously committed lines to the warehouse.
func Release(ctx context.Context, tx TxRepository, warehouseID int64, lines []Line) error {
	merged, err := Merge(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}
	if err := tx.Increment(ctx, warehouseID, merged); err != nil {
		return fmt.Errorf("stock: release: %w", err)
	}
	return nil
}
