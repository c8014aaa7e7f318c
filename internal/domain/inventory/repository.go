// internal/domain/inventory/repository.go
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerRepository persists inventory items
type LedgerRepository interface {
	// GetByProductID returns ErrProductNotFound when no ledger exists
	GetByProductID(ctx context.Context, productID uuid.UUID) (*InventoryItem, error)
	// Create returns ErrProductExists when the product already has a ledger
	Create(ctx context.Context, item *InventoryItem) error
	// Update writes item if its Version still matches the stored row and bumps
	// Version; otherwise it returns ErrConcurrentUpdate
	Update(ctx context.Context, item *InventoryItem) error
	ListLowStock(ctx context.Context) ([]InventoryItem, error)
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*StockReservation, error)
	// ListByOrderID returns reservations oldest first
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]StockReservation, error)
	// ListExpired returns reserved holds whose ExpiresAt is before now, oldest first
	ListExpired(ctx context.Context, now time.Time, limit int) ([]StockReservation, error)
	Create(ctx context.Context, reservation *StockReservation) error
	Update(ctx context.Context, reservation *StockReservation) error
}

// MovementRepository is the append-only audit log
type MovementRepository interface {
	Create(ctx context.Context, movement *StockMovement) error
	// ListByProductID returns movements newest first; limit <= 0 means all
	ListByProductID(ctx context.Context, productID uuid.UUID, limit int) ([]StockMovement, error)
}

// Store groups the repositories that change together
type Store interface {
	Ledgers() LedgerRepository
	Reservations() ReservationRepository
	Movements() MovementRepository
	// Atomically runs fn against a store bound to one unit of work.
	// If fn returns an error nothing it wrote is kept.
	Atomically(ctx context.Context, fn func(tx Store) error) error
}
