// internal/domain/payment/entity.go
package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents payment status
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Payment is one charge attempt for an order
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status          Status          `gorm:"not null;size:20;index" json:"status"`
	TransactionID   string          `gorm:"size:100" json:"transaction_id,omitempty"`
	GatewayResponse string          `gorm:"type:text" json:"gateway_response,omitempty"`
	FailureReason   string          `gorm:"size:255" json:"failure_reason,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	FailedAt        *time.Time      `json:"failed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPayment creates a payment in the initiated state
func NewPayment(orderID uuid.UUID, amount decimal.Decimal) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidPayment)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidPayment, amount)
	}

	now := time.Now().UTC()
	return &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkProcessing records that the gateway call is in flight
func (p *Payment) MarkProcessing() error {
	if p.Status != StatusInitiated {
		return p.transitionError(StatusProcessing)
	}
	p.Status = StatusProcessing
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSuccess records an accepted charge
func (p *Payment) MarkSuccess(transactionID, gatewayResponse string) error {
	if p.Status != StatusProcessing {
		return p.transitionError(StatusSuccess)
	}
	now := time.Now().UTC()
	p.Status = StatusSuccess
	p.TransactionID = transactionID
	p.GatewayResponse = gatewayResponse
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkFailed records a declined or errored charge. A successful payment never fails.
func (p *Payment) MarkFailed(reason string) error {
	if p.Status == StatusSuccess || p.Status == StatusFailed {
		return p.transitionError(StatusFailed)
	}
	now := time.Now().UTC()
	p.Status = StatusFailed
	p.FailureReason = reason
	p.FailedAt = &now
	p.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the payment reached success or failed
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed
}

// CanRetry reports whether a new attempt may be made for the order
func (p *Payment) CanRetry() bool {
	return p.Status == StatusFailed
}

func (p *Payment) transitionError(to Status) error {
	return fmt.Errorf("%w: payment %s is %s and cannot become %s", ErrInvalidTransition, p.ID, p.Status, to)
}
