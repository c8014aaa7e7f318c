// internal/domain/inventory/errors.go
package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrOverRelease         = errors.New("quantity exceeds reserved stock")
	ErrInvalidItem         = errors.New("invalid inventory item")
	ErrProductNotFound     = errors.New("product not found in inventory")
	ErrProductExists       = errors.New("inventory already exists for product")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrLockUnavailable     = errors.New("inventory lock unavailable")
	ErrInvalidState        = errors.New("invalid reservation state")
	ErrConcurrentUpdate    = errors.New("inventory modified concurrently")
	ErrPersistence         = errors.New("inventory persistence failed")
)

// StockError carries the quantities behind a rejected ledger operation
type StockError struct {
	Kind      error
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Requested int
	Available int
	Reserved  int
	Cause     error
}

func (e *StockError) Error() string {
	switch e.Kind {
	case ErrInsufficientStock:
		return fmt.Sprintf("Insufficient stock for product %s. Available: %d, Requested: %d", e.ProductID, e.Available, e.Requested)
	case ErrOverRelease:
		return fmt.Sprintf("Cannot release %d units of product %s. Only %d reserved", e.Requested, e.ProductID, e.Reserved)
	case ErrInvalidQuantity:
		return fmt.Sprintf("Quantity must be positive, got %d for product %s", e.Requested, e.ProductID)
	case ErrProductNotFound:
		return fmt.Sprintf("Product %s not found in inventory", e.ProductID)
	case ErrLockUnavailable:
		return fmt.Sprintf("Product %s is being updated by another request, try again", e.ProductID)
	default:
		return fmt.Sprintf("%v: product %s", e.Kind, e.ProductID)
	}
}

func (e *StockError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// StateError reports a reservation transition out of a terminal state
type StateError struct {
	ReservationID uuid.UUID
	From          ReservationStatus
	To            ReservationStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("reservation %s is %s and cannot become %s", e.ReservationID, e.From, e.To)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// IsTransient reports whether retrying the same request later may succeed
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockUnavailable) || errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrPersistence)
}

// Kind names the failure class of err for logs and metrics
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrOverRelease):
		return "over_release"
	case errors.Is(err, ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrProductExists):
		return "product_exists"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrLockUnavailable):
		return "lock_unavailable"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

func persistenceError(op string, err error) error {
	// domain errors raised by repositories pass through untouched
	for _, known := range []error{ErrProductNotFound, ErrReservationNotFound, ErrConcurrentUpdate, ErrProductExists} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
