package stock

import (
	"context"
	"fmt"
	"strconv"

	"github.com/feedflow/feedflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLevels(ctx context.Context, warehouseID int64) ([]Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service serves stock management outside the order pipeline.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Levels lists the stock of a warehouse.
func (s *Service) Levels(ctx context.Context, actor shared.Actor, warehouseID int64) ([]Entry, error) {
	if err := actor.Require(shared.PermStockView); err != nil {
		return nil, err
	}
	if warehouseID == 0 {
		return nil, shared.Validationf("warehouse id required")
	}
	return s.repo.ListLevels(ctx, warehouseID)
}

// Check reports every shortfall for lines without mutating stock.
func (s *Service) Check(ctx context.Context, warehouseID int64, lines []Line) ([]shared.Shortfall, error) {
	merged, err := Merge(lines)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}
	var shortfalls []shared.Shortfall
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		levels, err := tx.LockLevels(ctx, warehouseID, ids)
		if err != nil {
			return err
		}
		shortfalls = Shortfalls(levels, merged)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stock: check: %w", err)
	}
	return shortfalls, nil
}

// Receive posts inbound stock.
func (s *Service) Receive(ctx context.Context, actor shared.Actor, input ReceiveInput) error {
	if err := actor.Require(shared.PermStockReceive); err != nil {
		return err
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return shared.Validationf("warehouse and product required")
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: %v", shared.ErrValidation, ErrInvalidQuantity)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Increment(ctx, input.WarehouseID, []Line{{ProductID: input.ProductID, Quantity: input.Quantity}})
	})
	if err != nil {
		return fmt.Errorf("stock: receive: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Role:     actor.Role,
			Action:   "stock.receive",
			Entity:   "warehouse",
			EntityID: strconv.FormatInt(input.WarehouseID, 10),
			Meta:     map[string]any{"product_id": input.ProductID, "quantity": input.Quantity, "note": input.Note},
		})
	}
	return nil
}
