package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("payment transaction not found")
	ErrInvalidRequest      = errors.New("invalid payment request")
	ErrInvalidTransition   = errors.New("invalid payment status transition")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payment details")
)

// InvalidTransitionError carries the status the row actually had.
type InvalidTransitionError struct {
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
