// Package sequence issues strictly increasing, zero-padded order identifiers.
package sequence

import (
	"context"
	"errors"
	"fmt"
)

// OrderCounter is the counter name used for order identifiers.
const OrderCounter = "order"

const defaultWidth = 5

// ErrCounterUnavailable wraps backing store failures.
var ErrCounterUnavailable = errors.New("sequence: counter unavailable")

// Counter performs an atomic increment-and-read on a named counter.
type Counter interface {
	Increment(ctx context.Context, name string) (int64, error)
}

// Allocator formats counter values as display identifiers.
type Allocator struct {
	counter Counter
	name    string
	width   int
}

// NewAllocator builds an Allocator over the named counter.
func NewAllocator(counter Counter, name string) *Allocator {
	if name == "" {
		name = OrderCounter
	}
	return &Allocator{counter: counter, name: name, width: defaultWidth}
}

// Next returns the next identifier. Callers must abort on error.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	if a == nil || a.counter == nil {
		return "", ErrCounterUnavailable
	}
	n, err := a.counter.Increment(ctx, a.name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	if n <= 0 {
		return "", fmt.Errorf("%w: non-positive value %d", ErrCounterUnavailable, n)
	}
	return Format(n, a.width), nil
}

// Format zero-pads n to width digits. Values wider than width print in full.
func Format(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
