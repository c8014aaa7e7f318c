// internal/infrastructure/database/postgres/inventory_store.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
)

// InventoryStore implements inventory.Store on GORM. Atomically maps to a
// database transaction.
type InventoryStore struct {
	db   *gorm.DB
	inTx bool
}

// NewInventoryStore creates a store on db
func NewInventoryStore(db *gorm.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func (s *InventoryStore) Ledgers() inventory.LedgerRepository           { return &ledgerRepository{db: s.db} }
func (s *InventoryStore) Reservations() inventory.ReservationRepository { return &reservationRepository{db: s.db} }
func (s *InventoryStore) Movements() inventory.MovementRepository       { return &movementRepository{db: s.db} }

// Atomically implements inventory.Store
func (s *InventoryStore) Atomically(ctx context.Context, fn func(tx inventory.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&InventoryStore{db: tx, inTx: true})
	})
}

type ledgerRepository struct {
	db *gorm.DB
}

func (r *ledgerRepository) GetByProductID(ctx context.Context, productID uuid.UUID) (*inventory.InventoryItem, error) {
	var item inventory.InventoryItem
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, inventory.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ledgerRepository) Create(ctx context.Context, item *inventory.InventoryItem) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&inventory.InventoryItem{}).Where("product_id = ?", item.ProductID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return inventory.ErrProductExists
	}

	err := r.db.WithContext(ctx).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return inventory.ErrProductExists
	}
	return err
}

// Update is a compare-and-set on version, so two writers that both believe
// they hold the product lock cannot both apply a stale read
func (r *ledgerRepository) Update(ctx context.Context, item *inventory.InventoryItem) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&inventory.InventoryItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"product_name":       item.ProductName,
			"sku":                item.SKU,
			"quantity_available": item.QuantityAvailable,
			"quantity_reserved":  item.QuantityReserved,
			"reorder_level":      item.ReorderLevel,
			"max_stock_level":    item.MaxStockLevel,
			"last_restocked":     item.LastRestocked,
			"version":            item.Version + 1,
			"updated_at":         now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrConcurrentUpdate
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

func (r *ledgerRepository) ListLowStock(ctx context.Context) ([]inventory.InventoryItem, error) {
	var items []inventory.InventoryItem
	err := r.db.WithContext(ctx).
		Where("quantity_available <= reorder_level").
		Order("quantity_available ASC").
		Find(&items).Error
	return items, err
}

type reservationRepository struct {
	db *gorm.DB
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.StockReservation, error) {
	var reservation inventory.StockReservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, inventory.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *reservationRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]inventory.StockReservation, error) {
	var reservations []inventory.StockReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("reserved_at ASC").
		Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]inventory.StockReservation, error) {
	var reservations []inventory.StockReservation
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", inventory.ReservationReserved, now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) Create(ctx context.Context, reservation *inventory.StockReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *reservationRepository) Update(ctx context.Context, reservation *inventory.StockReservation) error {
	result := r.db.WithContext(ctx).Save(reservation)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrReservationNotFound
	}
	return nil
}

type movementRepository struct {
	db *gorm.DB
}

func (r *movementRepository) Create(ctx context.Context, movement *inventory.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *movementRepository) ListByProductID(ctx context.Context, productID uuid.UUID, limit int) ([]inventory.StockMovement, error) {
	var movements []inventory.StockMovement
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&movements).Error
	return movements, err
}
