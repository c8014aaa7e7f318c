// internal/domain/events/events.go
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Publisher is the outbound event channel. Delivery is fire-and-forget from the
// point of view of the sagas: a publish error is logged, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Inbound events

// OrderItem is one line of an order
type OrderItem struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"min=1"`
}

// OrderCreated triggers stock reservation for every line item
type OrderCreated struct {
	OrderID   uuid.UUID   `json:"order_id" binding:"required"`
	UserID    uuid.UUID   `json:"user_id,omitempty"`
	Items     []OrderItem `json:"items" binding:"required,min=1,dive"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// PaymentFailed triggers release of the order's reservations. The payment saga
// publishes the same shape, so one topic serves both directions.
type PaymentFailed struct {
	OrderID   uuid.UUID  `json:"order_id" binding:"required"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// InventoryReserved triggers the payment saga
type InventoryReserved struct {
	OrderID   uuid.UUID       `json:"order_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Outbound events

// StockReserved is emitted for every successfully reserved line item
type StockReserved struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int       `json:"quantity"`
	ReservedAt    time.Time `json:"reserved_at"`
}

// StockReservationFailed is emitted for the line item that stopped an order
type StockReservationFailed struct {
	OrderID           uuid.UUID `json:"order_id"`
	ProductID         uuid.UUID `json:"product_id"`
	RequestedQuantity int       `json:"requested_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	Reason            string    `json:"reason"`
	FailedAt          time.Time `json:"failed_at"`
}

// PaymentCompleted is emitted when the gateway accepts a charge
type PaymentCompleted struct {
	OrderID       uuid.UUID       `json:"order_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}
