package orders

import (
	"errors"
	"fmt"

	"github.com/cuemby/foodie/pkg/storage"
	"github.com/cuemby/foodie/pkg/types"
)

var (
	// ErrValidation is returned for malformed commands
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is not the
	// next step of the lifecycle
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownStatus is returned for a target status outside the lifecycle
	ErrUnknownStatus = errors.New("unknown status")

	// ErrNotFound is storage.ErrNotFound, re-exported for callers that only
	// import this package
	ErrNotFound = storage.ErrNotFound
)

// TransitionError describes a rejected status change
type TransitionError struct {
	OrderID string
	From    types.OrderStatus
	To      types.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unknownStatus(status types.OrderStatus) error {
	return fmt.Errorf("%w %q", ErrUnknownStatus, string(status))
}
