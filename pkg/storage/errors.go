package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/foodie/pkg/types"
)

var (
	// ErrNotFound is returned when an order or menu item does not exist
	ErrNotFound = errors.New("not found")

	// ErrPersistence marks failures of the underlying database. They are
	// transient from the caller's point of view.
	ErrPersistence = errors.New("persistence failure")

	// ErrPoolTimeout is returned when no store slot frees up in time
	ErrPoolTimeout = fmt.Errorf("%w: timed out waiting for a store connection", ErrPersistence)

	// ErrStatusConflict is matched by *StatusConflictError
	ErrStatusConflict = errors.New("status conflict")
)

// StatusConflictError reports that a conditional status update lost: the
// order was no longer in the expected status.
type StatusConflictError struct {
	OrderID  string
	Expected types.OrderStatus
	Actual   types.OrderStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("order %s: expected status %s, found %s", e.OrderID, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrStatusConflict) hold
func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// isClassified reports errors callers already know how to handle
func isClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrStatusConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
