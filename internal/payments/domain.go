package payments

import (
	"fmt"
	"time"

	"github.com/feedflow/feedflow/internal/shared"
)

// ErrOverpayment rejects a collection larger than the outstanding due.
var ErrOverpayment = fmt.Errorf("%w: payment exceeds due amount", shared.ErrConflict)

// Mode is how a payment was collected.
type Mode string

const (
	ModeCash         Mode = "Cash"
	ModeCheque       Mode = "Cheque"
	ModeBankTransfer Mode = "BankTransfer"
	ModeUPI          Mode = "UPI"
)

// IsValid reports whether the mode is known.
func (m Mode) IsValid() bool {
	switch m {
	case ModeCash, ModeCheque, ModeBankTransfer, ModeUPI:
		return true
	}
	return false
}

// Record is one append-only payment history row.
type Record struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	SalesmanID int64     `json:"salesman_id"`
	Amount     int64     `json:"amount"`
	Mode       Mode      `json:"mode"`
	RecordedBy int64     `json:"recorded_by"`
	PaidAt     time.Time `json:"paid_at"`
}

// ApplyInput carries one collection against an order.
type ApplyInput struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
	Mode   Mode  `json:"mode" validate:"required"`
}

// Validate checks the input before the order is locked.
func (in ApplyInput) Validate() error {
	if in.Amount <= 0 {
		return shared.Validationf("amount must be positive")
	}
	if !in.Mode.IsValid() {
		return shared.Validationf("unknown payment mode %q", in.Mode)
	}
	return nil
}

// HistoryFilter narrows the payment history listing.
type HistoryFilter struct {
	SalesmanID int64
	OrderID    string
	Page       int
	PerPage    int
}
