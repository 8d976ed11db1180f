// Package stock keeps per-warehouse product quantities and commits order lines against them.
package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/feedflow/feedflow/internal/shared"
)

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrStockChanged indicates a guarded decrement found less stock than the locked read.
	ErrStockChanged = fmt.Errorf("%w: stock level changed during commit", shared.ErrConflict)
)

// Line is one product quantity requested against a warehouse.
type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// Entry is the stored quantity of one product in one warehouse.
type Entry struct {
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReceiveInput posts inbound stock to a warehouse.
type ReceiveInput struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Note        string `json:"note" validate:"max=200"`
}
