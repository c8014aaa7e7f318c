// internal/domain/payment/repository.go
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidPayment    = errors.New("invalid payment")
	ErrInvalidTransition = errors.New("invalid payment transition")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrGateway           = errors.New("payment gateway error")
	ErrLockUnavailable   = errors.New("payment lock unavailable")
	ErrPersistence       = errors.New("payment persistence failed")
	ErrPaymentPending    = errors.New("payment outcome pending")
)

// Repository persists payments
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	Update(ctx context.Context, payment *Payment) error
	// GetByID returns ErrPaymentNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// ListByOrderID returns the order's payments newest first
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
}
