package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	levels map[int64]map[int64]int64
}

type memoryTx struct {
	levels map[int64]map[int64]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{levels: make(map[int64]map[int64]int64)}
}

func (r *memoryRepo) set(warehouseID, productID, qty int64) {
	if r.levels[warehouseID] == nil {
		r.levels[warehouseID] = make(map[int64]int64)
	}
	r.levels[warehouseID][productID] = qty
}

// WithTx works on a copy and swaps it in only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]map[int64]int64, len(r.levels))
	for wh, products := range r.levels {
		snapshot[wh] = make(map[int64]int64, len(products))
		for p, q := range products {
			snapshot[wh][p] = q
		}
	}
	if err := fn(ctx, &memoryTx{levels: snapshot}); err != nil {
		return err
	}
	r.levels = snapshot
	return nil
}

func (r *memoryRepo) ListLevels(_ context.Context, warehouseID int64) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for p, q := range r.levels[warehouseID] {
		out = append(out, Entry{WarehouseID: warehouseID, ProductID: p, Quantity: q})
	}
	return out, nil
}

func (tx *memoryTx) LockLevels(_ context.Context, warehouseID int64, productIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range productIDs {
		if q, ok := tx.levels[warehouseID][id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (tx *memoryTx) Decrement(_ context.Context, warehouseID int64, lines []Line) error {
	for _, l := range lines {
		if tx.levels[warehouseID][l.ProductID] < l.Quantity {
			return ErrStockChanged
		}
		tx.levels[warehouseID][l.ProductID] -= l.Quantity
	}
	return nil
}

func (tx *memoryTx) Increment(_ context.Context, warehouseID int64, lines []Line) error {
	if tx.levels[warehouseID] == nil {
		tx.levels[warehouseID] = make(map[int64]int64)
	}
	for _, l := range lines {
		tx.levels[warehouseID][l.ProductID] += l.Quantity
	}
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

const (
	productA  int64 = 1
	productB  int64 = 2
	warehouse int64 = 10
)

func TestCommitIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.set(warehouse, productA, 5)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, []Line{{ProductID: productA, Quantity: 3}, {ProductID: productB, Quantity: 1}})
	})

	var shortfall *shared.StockShortfallError
	require.True(t, errors.As(err, &shortfall))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, []shared.Shortfall{{ProductID: productB, Requested: 1, Available: 0}}, shortfall.Items)
	require.Equal(t, int64(5), repo.levels[warehouse][productA])
}

func TestCommitListsEveryShortfall(t *testing.T) {
	repo := newMemoryRepo()
	repo.set(warehouse, productA, 2)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, []Line{{ProductID: productB, Quantity: 4}, {ProductID: productA, Quantity: 3}})
	})

	var shortfall *shared.StockShortfallError
	require.True(t, errors.As(err, &shortfall))
	require.Len(t, shortfall.Items, 2)
	require.Equal(t, shared.Shortfall{ProductID: productA, Requested: 3, Available: 2}, shortfall.Items[0])
	require.Equal(t, shared.Shortfall{ProductID: productB, Requested: 4, Available: 0}, shortfall.Items[1])
}

func TestCommitMergesDuplicateProducts(t *testing.T) {
	repo := newMemoryRepo()
	repo.set(warehouse, productA, 5)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, []Line{{ProductID: productA, Quantity: 3}, {ProductID: productA, Quantity: 3}})
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(5), repo.levels[warehouse][productA])

	err = repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, []Line{{ProductID: productA, Quantity: 2}, {ProductID: productA, Quantity: 3}})
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), repo.levels[warehouse][productA])
}

func TestCommitRejectsInvalidLines(t *testing.T) {
	repo := newMemoryRepo()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, []Line{{ProductID: productA, Quantity: 0}})
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	err = repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, 0, []Line{{ProductID: productA, Quantity: 1}})
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReleaseRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.set(warehouse, productA, 50)

	ctx := context.Background()
	lines := []Line{{ProductID: productA, Quantity: 40}}
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return Commit(ctx, tx, warehouse, lines)
	}))
	require.Equal(t, int64(10), repo.levels[warehouse][productA])

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return Release(ctx, tx, warehouse, lines)
	}))
	require.Equal(t, int64(50), repo.levels[warehouse][productA])
}

func TestServiceReceiveAndCheck(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit)
	ctx := context.Background()
	plantHead := shared.Actor{ID: 7, Role: shared.RolePlantHead}

	require.NoError(t, svc.Receive(ctx, plantHead, ReceiveInput{WarehouseID: warehouse, ProductID: productA, Quantity: 8}))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stock.receive", audit.logs[0].Action)

	shortfalls, err := svc.Check(ctx, warehouse, []Line{{ProductID: productA, Quantity: 10}})
	require.NoError(t, err)
	require.Equal(t, []shared.Shortfall{{ProductID: productA, Requested: 10, Available: 8}}, shortfalls)
	require.Equal(t, int64(8), repo.levels[warehouse][productA])

	salesman := shared.Actor{ID: 3, Role: shared.RoleSalesman}
	err = svc.Receive(ctx, salesman, ReceiveInput{WarehouseID: warehouse, ProductID: productA, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrForbidden)
}
