// Package orders implements the order record, its approval pipeline and the
// role guarded lifecycle transitions.
package orders

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
)

var (
	// ErrOrderNotFound indicates missing order.
	ErrOrderNotFound = fmt.Errorf("%w: order", shared.ErrNotFound)
	// ErrStatusChanged indicates the guarded update lost a race.
	ErrStatusChanged = fmt.Errorf("%w: order status changed concurrently", shared.ErrConflict)
	// ErrAmountsDiverged indicates advance plus due no longer equals the total.
	ErrAmountsDiverged = errors.New("orders: advance and due do not add up to total")
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPlaced                Status = "Placed"
	StatusForwardedToAuthorizer Status = "ForwardedToAuthorizer"
	StatusWarehouseAssigned     Status = "WarehouseAssigned"
	StatusApproved              Status = "Approved"
	StatusDispatched            Status = "Dispatched"
	StatusDelivered             Status = "Delivered"
	StatusPaid                  Status = "Paid"
	StatusCancelled             Status = "Cancelled"
)

var statuses = []Status{
	StatusPlaced, StatusForwardedToAuthorizer, StatusWarehouseAssigned, StatusApproved,
	StatusDispatched, StatusDelivered, StatusPaid, StatusCancelled,
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transition is possible.
// Payment state may still change after Delivered.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusPaid || s == StatusCancelled
}

// PaymentStatus summarises settlement of the whole order.
type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "Unpaid"
	PaymentConfirmationPending PaymentStatus = "ConfirmationPending"
	PaymentPendingDues         PaymentStatus = "PendingDues"
	PaymentPartial             PaymentStatus = "Partial"
	PaymentPaid                PaymentStatus = "Paid"
)

// AdvanceStatus tracks the advance payment proof.
type AdvanceStatus string

const (
	AdvanceNone            AdvanceStatus = "None"
	AdvancePending         AdvanceStatus = "Pending"
	AdvanceSentForApproval AdvanceStatus = "SentForApproval"
	AdvanceConfirmed       AdvanceStatus = "Confirmed"
)

// DueStatus tracks collection of the remaining amount.
type DueStatus string

const (
	DueNone    DueStatus = "None"
	DuePending DueStatus = "Pending"
	DuePartial DueStatus = "Partial"
	DueCleared DueStatus = "Cleared"
)

// Item is one ordered product line.
type Item struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Amount      int64  `json:"amount"`
}

// Dispatch records the vehicle carrying the order.
type Dispatch struct {
	VehicleNumber string    `json:"vehicle_number"`
	DriverName    string    `json:"driver_name"`
	DriverPhone   string    `json:"driver_phone"`
	DispatchedBy  int64     `json:"dispatched_by"`
	DispatchedAt  time.Time `json:"dispatched_at"`
}

// Cancellation records who cancelled the order and why.
type Cancellation struct {
	Role   shared.Role `json:"role"`
	UserID int64       `json:"user_id"`
	Reason string      `json:"reason"`
	Date   time.Time   `json:"date"`
}

// Order is the persisted order record.
type Order struct {
	ID                    string           `json:"id"`
	PartyID               int64            `json:"party_id"`
	Party                 parties.Snapshot `json:"party"`
	Items                 []Item           `json:"items"`
	GrossAmount           int64            `json:"gross_amount"`
	Discount              int              `json:"discount"`
	TotalAmount           int64            `json:"total_amount"`
	AdvanceAmount         int64            `json:"advance_amount"`
	DueAmount             int64            `json:"due_amount"`
	PaidAmount            int64            `json:"paid_amount"`
	Status                Status           `json:"order_status"`
	PaymentStatus         PaymentStatus    `json:"payment_status"`
	AdvanceStatus         AdvanceStatus    `json:"advance_payment_status"`
	DueStatus             DueStatus        `json:"due_payment_status"`
	AdvanceProofURL       string           `json:"advance_proof_url,omitempty"`
	InvoiceURL            string           `json:"invoice_url,omitempty"`
	PlacedBy              int64            `json:"placed_by"`
	ForwardedByManager    int64            `json:"forwarded_by_manager,omitempty"`
	ForwardedByAuthorizer int64            `json:"forwarded_by_authorizer,omitempty"`
	ApprovedBy            int64            `json:"approved_by,omitempty"`
	AssignedWarehouse     int64            `json:"assigned_warehouse,omitempty"`
	Dispatch              *Dispatch        `json:"dispatch,omitempty"`
	DeliveredAt           *time.Time       `json:"delivered_at,omitempty"`
	CanceledBy            *Cancellation    `json:"canceled_by,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// Lines returns the stock lines the order commits.
func (o Order) Lines() []stock.Line {
	lines := make([]stock.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = stock.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}

// CheckAmounts verifies advance plus collected plus due equals total on live
// orders. Collections are zero until the first payment, so a fresh order
// balances on advance and due alone.
func (o Order) CheckAmounts() error {
	if o.Status == StatusCancelled {
		return nil
	}
	if o.DueAmount < 0 || o.PaidAmount < 0 {
		return fmt.Errorf("%w: order %s due %d paid %d", ErrAmountsDiverged, o.ID, o.DueAmount, o.PaidAmount)
	}
	if o.AdvanceAmount+o.PaidAmount+o.DueAmount != o.TotalAmount {
		return fmt.Errorf("%w: order %s advance %d paid %d due %d total %d",
			ErrAmountsDiverged, o.ID, o.AdvanceAmount, o.PaidAmount, o.DueAmount, o.TotalAmount)
	}
	return nil
}

// settleAdvance sets due and the payment flags for a new advance amount.
func (o *Order) settleAdvance(advance int64) {
	o.AdvanceAmount = advance
	o.DueAmount = o.TotalAmount - advance
	switch {
	case advance > 0:
		o.PaymentStatus = PaymentConfirmationPending
		o.AdvanceStatus = AdvancePending
	default:
		o.PaymentStatus = PaymentUnpaid
		o.AdvanceStatus = AdvanceNone
	}
	if o.DueAmount > 0 {
		o.DueStatus = DuePending
	} else {
		o.DueStatus = DueNone
	}
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64 `json:"unit_price" validate:"gte=0"`
}

// PlaceRequest carries a new order.
type PlaceRequest struct {
	PartyID        int64       `json:"party_id" validate:"required,gt=0"`
	Items          []ItemInput `json:"items" validate:"required,min=1,dive"`
	Discount       int         `json:"discount" validate:"gte=0,lte=100"`
	AdvanceAmount  int64       `json:"advance_amount" validate:"gte=0"`
	IdempotencyKey string      `json:"-"`
}

// Validate checks the request before any state is touched.
func (r PlaceRequest) Validate() error {
	if r.PartyID <= 0 {
		return shared.Validationf("party_id is required")
	}
	if len(r.Items) == 0 {
		return shared.Validationf("at least one item is required")
	}
	for i, it := range r.Items {
		if it.ProductID <= 0 {
			return shared.Validationf("items[%d]: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return shared.Validationf("items[%d]: quantity must be positive", i)
		}
		if it.UnitPrice < 0 {
			return shared.Validationf("items[%d]: unit_price must not be negative", i)
		}
	}
	if r.Discount < 0 || r.Discount > 100 {
		return shared.Validationf("discount must be between 0 and 100")
	}
	if r.AdvanceAmount < 0 {
		return shared.Validationf("advance_amount must not be negative")
	}
	if _, _, err := r.Totals(); err != nil {
		return err
	}
	return nil
}

// Totals computes the gross and discounted total of the request. Amounts
// that do not fit in int64 are a validation error.
func (r PlaceRequest) Totals() (gross, total int64, err error) {
	for i, it := range r.Items {
		if it.UnitPrice != 0 && it.Quantity > math.MaxInt64/it.UnitPrice {
			return 0, 0, shared.Validationf("items[%d]: amount overflows", i)
		}
		amount := it.Quantity * it.UnitPrice
		if gross > math.MaxInt64-amount {
			return 0, 0, shared.Validationf("order total overflows")
		}
		gross += amount
	}
	d := int64(r.Discount)
	total = gross - (gross/100)*d - (gross%100)*d/100
	return gross, total, nil
}

// DispatchRequest carries the vehicle details.
type DispatchRequest struct {
	VehicleNumber string `json:"vehicle_number" validate:"required,max=32"`
	DriverName    string `json:"driver_name" validate:"required,max=100"`
	DriverPhone   string `json:"driver_phone" validate:"omitempty,max=20"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status    Status
	PartyID   int64
	PlacedBy  int64
	StaffID   int64
	Warehouse int64
	Page      int
	PerPage   int
}
