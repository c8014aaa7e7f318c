// internal/domain/inventory/entity.go
package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when an item is created without explicit levels
const (
	DefaultReorderLevel  = 10
	DefaultMaxStockLevel = 1000
)

// MovementType represents the type of inventory movement
type MovementType string

const (
	MovementStockIn    MovementType = "stock_in"
	MovementStockOut   MovementType = "stock_out"
	MovementReserved   MovementType = "reserved"
	MovementReleased   MovementType = "released"
	MovementAdjustment MovementType = "adjustment"
	MovementDamaged    MovementType = "damaged"
	MovementReturned   MovementType = "returned"
)

// ReservationStatus represents the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationReserved
}

// InventoryItem is the stock ledger of one product.
// Total stock is QuantityAvailable + QuantityReserved.
type InventoryItem struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"product_id"`
	ProductName       string    `gorm:"not null;size:200" json:"product_name"`
	SKU               string    `gorm:"not null;size:100;index" json:"sku"`
	QuantityAvailable int       `gorm:"not null" json:"quantity_available"`
	QuantityReserved  int       `gorm:"not null" json:"quantity_reserved"`
	ReorderLevel      int       `gorm:"not null" json:"reorder_level"`
	MaxStockLevel     int       `gorm:"not null" json:"max_stock_level"`
	Version           int       `gorm:"not null" json:"version"`
	LastRestocked     time.Time `json:"last_restocked"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewInventoryItem validates and builds a fresh ledger
func NewInventoryItem(productID uuid.UUID, productName, sku string, initialQuantity, reorderLevel, maxStockLevel int) (*InventoryItem, error) {
	switch {
	case productID == uuid.Nil:
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidItem)
	case strings.TrimSpace(productName) == "":
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidItem)
	case strings.TrimSpace(sku) == "":
		return nil, fmt.Errorf("%w: sku is required", ErrInvalidItem)
	case initialQuantity < 0:
		return nil, fmt.Errorf("%w: initial quantity cannot be negative", ErrInvalidItem)
	case reorderLevel < 0:
		return nil, fmt.Errorf("%w: reorder level cannot be negative", ErrInvalidItem)
	case maxStockLevel < 0:
		return nil, fmt.Errorf("%w: max stock level cannot be negative", ErrInvalidItem)
	}

	now := time.Now().UTC()
	return &InventoryItem{
		ID:                uuid.New(),
		ProductID:         productID,
		ProductName:       strings.TrimSpace(productName),
		SKU:               strings.TrimSpace(sku),
		QuantityAvailable: initialQuantity,
		ReorderLevel:      reorderLevel,
		MaxStockLevel:     maxStockLevel,
		Version:           1,
		LastRestocked:     now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// TotalQuantity returns available plus reserved stock
func (ii *InventoryItem) TotalQuantity() int {
	return ii.QuantityAvailable + ii.QuantityReserved
}

// IsLowStock checks if inventory is at or below reorder level
func (ii *InventoryItem) IsLowStock() bool {
	return ii.QuantityAvailable <= ii.ReorderLevel
}

// CanReserve reports whether quantity can be reserved right now
func (ii *InventoryItem) CanReserve(quantity int) bool {
	return quantity > 0 && ii.QuantityAvailable >= quantity
}

// Reserve moves quantity from available to reserved
func (ii *InventoryItem) Reserve(quantity int) error {
	if quantity <= 0 {
		return ii.quantityError(quantity)
	}
	if ii.QuantityAvailable < quantity {
		return &StockError{Kind: ErrInsufficientStock, ProductID: ii.ProductID, Requested: quantity, Available: ii.QuantityAvailable}
	}
	ii.QuantityAvailable -= quantity
	ii.QuantityReserved += quantity
	ii.touch()
	return nil
}

// ReleaseReservation moves quantity back from reserved to available
func (ii *InventoryItem) ReleaseReservation(quantity int) error {
	if quantity <= 0 {
		return ii.quantityError(quantity)
	}
	if ii.QuantityReserved < quantity {
		return &StockError{Kind: ErrOverRelease, ProductID: ii.ProductID, Requested: quantity, Reserved: ii.QuantityReserved}
	}
	ii.QuantityReserved -= quantity
	ii.QuantityAvailable += quantity
	ii.touch()
	return nil
}

// ConfirmReservation consumes reserved stock permanently
func (ii *InventoryItem) ConfirmReservation(quantity int) error {
	if quantity <= 0 {
		return ii.quantityError(quantity)
	}
	if ii.QuantityReserved < quantity {
		return &StockError{Kind: ErrOverRelease, ProductID: ii.ProductID, Requested: quantity, Reserved: ii.QuantityReserved}
	}
	ii.QuantityReserved -= quantity
	ii.touch()
	return nil
}

// AddStock increases available stock
func (ii *InventoryItem) AddStock(quantity int) error {
	if quantity <= 0 {
		return ii.quantityError(quantity)
	}
	ii.QuantityAvailable += quantity
	ii.LastRestocked = time.Now().UTC()
	ii.touch()
	return nil
}

// RemoveStock decreases available stock; reserved stock is never touched
func (ii *InventoryItem) RemoveStock(quantity int) error {
	if quantity <= 0 {
		return ii.quantityError(quantity)
	}
	if ii.QuantityAvailable < quantity {
		return &StockError{Kind: ErrInsufficientStock, ProductID: ii.ProductID, Requested: quantity, Available: ii.QuantityAvailable}
	}
	ii.QuantityAvailable -= quantity
	ii.touch()
	return nil
}

// AdjustStock sets available stock to an absolute count, e.g. after a physical count
func (ii *InventoryItem) AdjustStock(newQuantity int) error {
	if newQuantity < 0 {
		return ii.quantityError(newQuantity)
	}
	ii.QuantityAvailable = newQuantity
	ii.touch()
	return nil
}

// UpdateReorderLevel changes the low stock threshold
func (ii *InventoryItem) UpdateReorderLevel(level int) error {
	if level < 0 {
		return fmt.Errorf("%w: reorder level cannot be negative", ErrInvalidItem)
	}
	ii.ReorderLevel = level
	ii.touch()
	return nil
}

func (ii *InventoryItem) quantityError(quantity int) error {
	return &StockError{Kind: ErrInvalidQuantity, ProductID: ii.ProductID, Requested: quantity}
}

func (ii *InventoryItem) touch() {
	ii.UpdatedAt = time.Now().UTC()
}

// StockReservation holds stock for one line of one order until it is
// confirmed, released, or expires
type StockReservation struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"product_id"`
	OrderID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"order_id"`
	Quantity    int               `gorm:"not null" json:"quantity"`
	Status      ReservationStatus `gorm:"not null;size:20;index" json:"status"`
	ReservedAt  time.Time         `gorm:"not null" json:"reserved_at"`
	ExpiresAt   time.Time         `gorm:"not null;index" json:"expires_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	ReleasedAt  *time.Time        `json:"released_at,omitempty"`
	Reason      string            `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewStockReservation creates a reservation in the reserved state
func NewStockReservation(productID, orderID uuid.UUID, quantity int, ttl time.Duration) (*StockReservation, error) {
	if quantity <= 0 {
		return nil, &StockError{Kind: ErrInvalidQuantity, ProductID: productID, OrderID: orderID, Requested: quantity}
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive, got %s", ttl)
	}

	now := time.Now().UTC()
	return &StockReservation{
		ID:         uuid.New(),
		ProductID:  productID,
		OrderID:    orderID,
		Quantity:   quantity,
		Status:     ReservationReserved,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsExpired reports whether a reserved hold has outlived its ttl at now
func (sr *StockReservation) IsExpired(now time.Time) bool {
	return sr.Status == ReservationReserved && now.After(sr.ExpiresAt)
}

// Confirm marks the reservation as fulfilled
func (sr *StockReservation) Confirm() error {
	if err := sr.transition(ReservationConfirmed); err != nil {
		return err
	}
	now := time.Now().UTC()
	sr.ConfirmedAt = &now
	return nil
}

// Release cancels the reservation
func (sr *StockReservation) Release(reason string) error {
	if err := sr.transition(ReservationReleased); err != nil {
		return err
	}
	now := time.Now().UTC()
	sr.ReleasedAt = &now
	sr.Reason = reason
	return nil
}

// MarkExpired cancels the reservation because its ttl passed
func (sr *StockReservation) MarkExpired() error {
	if err := sr.transition(ReservationExpired); err != nil {
		return err
	}
	now := time.Now().UTC()
	sr.ReleasedAt = &now
	sr.Reason = "reservation expired"
	return nil
}

func (sr *StockReservation) transition(to ReservationStatus) error {
	if sr.Status != ReservationReserved {
		return &StateError{ReservationID: sr.ID, From: sr.Status, To: to}
	}
	sr.Status = to
	sr.UpdatedAt = time.Now().UTC()
	return nil
}

// StockMovement is one append-only audit record of a quantity change.
// Before/after snapshot QuantityAvailable.
type StockMovement struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"product_id"`
	MovementType   MovementType `gorm:"not null;size:20" json:"movement_type"`
	Quantity       int          `gorm:"not null" json:"quantity"`
	QuantityBefore int          `gorm:"not null" json:"quantity_before"`
	QuantityAfter  int          `gorm:"not null" json:"quantity_after"`
	Reference      string       `gorm:"size:100;index" json:"reference,omitempty"`
	Notes          string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at"`
}

// NewStockMovement builds a movement record stamped now
func NewStockMovement(productID uuid.UUID, movementType MovementType, quantity, before, after int, reference, notes string) *StockMovement {
	return &StockMovement{
		ID:             uuid.New(),
		ProductID:      productID,
		MovementType:   movementType,
		Quantity:       quantity,
		QuantityBefore: before,
		QuantityAfter:  after,
		Reference:      reference,
		Notes:          notes,
		CreatedAt:      time.Now().UTC(),
	}
}
