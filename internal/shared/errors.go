package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any state is touched.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that does not fit the current state.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock marks a warehouse commit that cannot be satisfied.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrForbidden indicates the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid bearer credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDelivery marks a notification channel failure. It never affects a committed transition.
	ErrDelivery = errors.New("notification delivery failed")
)

// Validationf builds an ErrValidation wrapped error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound wrapped error.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ConflictError reports an action rejected because of the subject's current state.
type ConflictError struct {
	Subject string
	Action  string
	Current string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: cannot %s (current: %s)", e.Subject, e.Action, e.Current)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Shortfall describes one product that cannot be covered by warehouse stock.
type Shortfall struct {
	ProductID int64 `json:"product_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// StockShortfallError enumerates every shortfall found during a warehouse commit.
type StockShortfallError struct {
	WarehouseID int64
	Items       []Shortfall
}

func (e *StockShortfallError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("product %d requested %d available %d", item.ProductID, item.Requested, item.Available))
	}
	return fmt.Sprintf("warehouse %d: insufficient stock: %s", e.WarehouseID, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *StockShortfallError) Unwrap() error { return ErrInsufficientStock }
