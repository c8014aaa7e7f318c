// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
	"github.com/your-org/stock-reservation/internal/pkg/metrics"
)

const (
	expiryBatchSize     = 100
	compensationTimeout = 30 * time.Second
)

// Options wires the collaborators shared by Service and Coordinator
type Options struct {
	Store     Store
	Locker    lock.Locker
	Publisher events.Publisher
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
	Config    config.ReservationConfig
	Topics    config.TopicConfig
}

// LockKey is the distributed lock key guarding one product's ledger
func LockKey(productID uuid.UUID) string {
	return "inventory:lock:" + productID.String()
}

// core holds what every ledger mutation needs: the store, the product lock and
// the release path shared by payment failure, compensation and expiry
type core struct {
	store     Store
	guard     *lock.Guard
	publisher events.Publisher
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	cfg       config.ReservationConfig
	topics    config.TopicConfig
}

func newCore(opts Options) *core {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	m := opts.Metrics

	return &core{
		store:     opts.Store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		cfg:       opts.Config,
		topics:    opts.Topics,
		guard: &lock.Guard{
			Locker: opts.Locker,
			Options: lock.Options{
				TTL:           opts.Config.LockTTL,
				Wait:          opts.Config.LockWait,
				RetryInterval: opts.Config.LockRetryInterval,
			},
			Logger:  logger,
			Observe: func(_ string, event lock.Event) { m.LockEvent(string(event)) },
		},
	}
}

// withProductLock runs fn while holding the product's lock. Failing to obtain
// the lock is reported as ErrLockUnavailable; errors from fn pass through.
func (c *core) withProductLock(ctx context.Context, productID uuid.UUID, fn func(ctx context.Context) error) error {
	err := c.guard.Do(ctx, LockKey(productID), fn)

	var acqErr *lock.AcquireError
	if errors.As(err, &acqErr) {
		return &StockError{Kind: ErrLockUnavailable, ProductID: productID, Cause: acqErr}
	}
	if errors.Is(err, ErrPersistence) {
		c.logger.WithError(err).WithField("product_id", productID).Error("Inventory unit of work failed and was rolled back")
	}
	return err
}

// releaseReservation returns a reserved hold to available stock. Holds that
// are already released or expired are skipped and reported as not released.
func (c *core) releaseReservation(ctx context.Context, reservationID, productID uuid.UUID, reason string, expire bool) (bool, error) {
	var released bool

	err := c.withProductLock(ctx, productID, func(ctx context.Context) error {
		return c.store.Atomically(ctx, func(tx Store) error {
			released = false

			reservation, err := tx.Reservations().GetByID(ctx, reservationID)
			if err != nil {
				return persistenceError("load reservation", err)
			}
			switch reservation.Status {
			case ReservationReleased, ReservationExpired:
				return nil
			}
			if expire && !reservation.IsExpired(time.Now()) {
				return nil
			}

			if expire {
				err = reservation.MarkExpired()
			} else {
				err = reservation.Release(reason)
			}
			if err != nil {
				return err
			}

			ledger, err := c.loadLedger(ctx, tx, reservation.ProductID)
			if err != nil {
				return err
			}
			before := ledger.QuantityAvailable
			if err := ledger.ReleaseReservation(reservation.Quantity); err != nil {
				return err
			}

			if err := tx.Ledgers().Update(ctx, ledger); err != nil {
				return persistenceError("update ledger", err)
			}
			if err := tx.Reservations().Update(ctx, reservation); err != nil {
				return persistenceError("update reservation", err)
			}
			movement := NewStockMovement(reservation.ProductID, MovementReleased, reservation.Quantity,
				before, ledger.QuantityAvailable, reservation.OrderID.String(), reservation.Reason)
			if err := tx.Movements().Create(ctx, movement); err != nil {
				return persistenceError("append movement", err)
			}

			released = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (c *core) loadLedger(ctx context.Context, tx Store, productID uuid.UUID) (*InventoryItem, error) {
	ledger, err := tx.Ledgers().GetByProductID(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		return nil, &StockError{Kind: ErrProductNotFound, ProductID: productID}
	}
	if err != nil {
		return nil, persistenceError("load ledger", err)
	}
	return ledger, nil
}

func (c *core) publish(ctx context.Context, topic, key string, payload interface{}) {
	if topic == "" {
		return
	}
	if err := c.publisher.Publish(ctx, topic, key, payload); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"key":   key,
		}).Error("Failed to publish event")
	}
}

// Service handles stock administration and reservation lifecycle operations
type Service struct {
	*core
}

// NewService creates a new inventory service
func NewService(opts Options) *Service {
	return &Service{core: newCore(opts)}
}

// CreateItemRequest represents inventory creation data
type CreateItemRequest struct {
	ProductID       uuid.UUID `json:"product_id" binding:"required"`
	ProductName     string    `json:"product_name" binding:"required"`
	SKU             string    `json:"sku" binding:"required"`
	InitialQuantity int       `json:"initial_quantity" binding:"min=0"`
	ReorderLevel    *int      `json:"reorder_level,omitempty"`
	MaxStockLevel   *int      `json:"max_stock_level,omitempty"`
}

// StockChangeRequest represents a manual stock movement
type StockChangeRequest struct {
	Quantity  int          `json:"quantity"`
	Type      MovementType `json:"movement_type,omitempty"`
	Reference string       `json:"reference,omitempty"`
	Notes     string       `json:"notes,omitempty"`
}

// AdjustStockRequest sets available stock to an absolute count
type AdjustStockRequest struct {
	NewQuantity int    `json:"new_quantity" binding:"min=0"`
	Reference   string `json:"reference,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// StockCheck is the answer to an availability query
type StockCheck struct {
	ProductID         uuid.UUID `json:"product_id"`
	RequestedQuantity int       `json:"requested_quantity"`
	QuantityAvailable int       `json:"quantity_available"`
	QuantityReserved  int       `json:"quantity_reserved"`
	IsAvailable       bool      `json:"is_available"`
}

// CreateItem creates a ledger and records the initial stock
func (s *Service) CreateItem(ctx context.Context, req CreateItemRequest) (*InventoryItem, error) {
	reorderLevel, maxStockLevel := DefaultReorderLevel, DefaultMaxStockLevel
	if req.ReorderLevel != nil {
		reorderLevel = *req.ReorderLevel
	}
	if req.MaxStockLevel != nil {
		maxStockLevel = *req.MaxStockLevel
	}

	item, err := NewInventoryItem(req.ProductID, req.ProductName, req.SKU, req.InitialQuantity, reorderLevel, maxStockLevel)
	if err != nil {
		return nil, err
	}

	err = s.withProductLock(ctx, item.ProductID, func(ctx context.Context) error {
		return s.store.Atomically(ctx, func(tx Store) error {
			if err := tx.Ledgers().Create(ctx, item); err != nil {
				return persistenceError("create ledger", err)
			}
			if item.QuantityAvailable == 0 {
				return nil
			}
			movement := NewStockMovement(item.ProductID, MovementStockIn, item.QuantityAvailable,
				0, item.QuantityAvailable, "INITIAL", "Initial stock creation")
			if err := tx.Movements().Create(ctx, movement); err != nil {
				return persistenceError("append movement", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": item.ProductID,
		"sku":        item.SKU,
		"quantity":   item.QuantityAvailable,
	}).Info("Inventory item created")
	return item, nil
}

// GetItem retrieves the ledger of a product
func (s *Service) GetItem(ctx context.Context, productID uuid.UUID) (*InventoryItem, error) {
	return s.loadLedger(ctx, s.store, productID)
}

// CheckStock reports whether quantity could be reserved now. The answer is
// advisory; only a reservation under the product lock is authoritative.
func (s *Service) CheckStock(ctx context.Context, productID uuid.UUID, quantity int) (*StockCheck, error) {
	if quantity <= 0 {
		return nil, &StockError{Kind: ErrInvalidQuantity, ProductID: productID, Requested: quantity}
	}
	item, err := s.GetItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &StockCheck{
		ProductID:         productID,
		RequestedQuantity: quantity,
		QuantityAvailable: item.QuantityAvailable,
		QuantityReserved:  item.QuantityReserved,
		IsAvailable:       item.CanReserve(quantity),
	}, nil
}

// ListLowStock returns items at or below their reorder level
func (s *Service) ListLowStock(ctx context.Context) ([]InventoryItem, error) {
	items, err := s.store.Ledgers().ListLowStock(ctx)
	if err != nil {
		return nil, persistenceError("list low stock", err)
	}
	return items, nil
}

// AddStock increases available stock. Type may be stock_in (default) or returned.
func (s *Service) AddStock(ctx context.Context, productID uuid.UUID, req StockChangeRequest) (*InventoryItem, error) {
	movementType := req.Type
	if movementType == "" {
		movementType = MovementStockIn
	}
	if movementType != MovementStockIn && movementType != MovementReturned {
		return nil, fmt.Errorf("%w: movement type %q cannot add stock", ErrInvalidItem, movementType)
	}

	return s.mutateLedger(ctx, productID, movementType, req.Reference, req.Notes, func(item *InventoryItem) (int, error) {
		return req.Quantity, item.AddStock(req.Quantity)
	})
}

// RemoveStock decreases available stock. Type may be stock_out (default) or damaged.
func (s *Service) RemoveStock(ctx context.Context, productID uuid.UUID, req StockChangeRequest) (*InventoryItem, error) {
	movementType := req.Type
	if movementType == "" {
		movementType = MovementStockOut
	}
	if movementType != MovementStockOut && movementType != MovementDamaged {
		return nil, fmt.Errorf("%w: movement type %q cannot remove stock", ErrInvalidItem, movementType)
	}

	return s.mutateLedger(ctx, productID, movementType, req.Reference, req.Notes, func(item *InventoryItem) (int, error) {
		return req.Quantity, item.RemoveStock(req.Quantity)
	})
}

// AdjustStock overwrites available stock with a counted value
func (s *Service) AdjustStock(ctx context.Context, productID uuid.UUID, req AdjustStockRequest) (*InventoryItem, error) {
	return s.mutateLedger(ctx, productID, MovementAdjustment, req.Reference, req.Notes, func(item *InventoryItem) (int, error) {
		delta := req.NewQuantity - item.QuantityAvailable
		if delta < 0 {
			delta = -delta
		}
		return delta, item.AdjustStock(req.NewQuantity)
	})
}

// UpdateReorderLevel changes the low stock threshold of a product
func (s *Service) UpdateReorderLevel(ctx context.Context, productID uuid.UUID, level int) (*InventoryItem, error) {
	var updated *InventoryItem
	err := s.withProductLock(ctx, productID, func(ctx context.Context) error {
		item, err := s.loadLedger(ctx, s.store, productID)
		if err != nil {
			return err
		}
		if err := item.UpdateReorderLevel(level); err != nil {
			return err
		}
		if err := s.store.Ledgers().Update(ctx, item); err != nil {
			return persistenceError("update ledger", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListMovements returns the newest movements of a product
func (s *Service) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]StockMovement, error) {
	if _, err := s.GetItem(ctx, productID); err != nil {
		return nil, err
	}
	movements, err := s.store.Movements().ListByProductID(ctx, productID, limit)
	if err != nil {
		return nil, persistenceError("list movements", err)
	}
	return movements, nil
}

// mutateLedger applies change under the product lock and records one movement
// in the same unit of work. change returns the movement quantity.
func (s *Service) mutateLedger(ctx context.Context, productID uuid.UUID, movementType MovementType, reference, notes string, change func(*InventoryItem) (int, error)) (*InventoryItem, error) {
	var updated *InventoryItem

	err := s.withProductLock(ctx, productID, func(ctx context.Context) error {
		return s.store.Atomically(ctx, func(tx Store) error {
			item, err := s.loadLedger(ctx, tx, productID)
			if err != nil {
				return err
			}
			before := item.QuantityAvailable
			quantity, err := change(item)
			if err != nil {
				return err
			}
			if err := tx.Ledgers().Update(ctx, item); err != nil {
				return persistenceError("update ledger", err)
			}
			movement := NewStockMovement(productID, movementType, quantity, before, item.QuantityAvailable, reference, notes)
			if err := tx.Movements().Create(ctx, movement); err != nil {
				return persistenceError("append movement", err)
			}
			updated = item
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"product_id":    productID,
		"movement_type": movementType,
		"available":     updated.QuantityAvailable,
	}).Info("Stock updated")
	return updated, nil
}

// ListReservations returns every reservation of an order
func (s *Service) ListReservations(ctx context.Context, orderID uuid.UUID) ([]StockReservation, error) {
	reservations, err := s.store.Reservations().ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, persistenceError("list reservations", err)
	}
	return reservations, nil
}

// ConfirmReservation turns a hold into a sale: reserved stock is consumed and
// a stock_out movement is recorded against the order.
func (s *Service) ConfirmReservation(ctx context.Context, reservationID uuid.UUID) (*StockReservation, error) {
	current, err := s.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return nil, persistenceError("load reservation", err)
	}

	var confirmed *StockReservation
	err = s.withProductLock(ctx, current.ProductID, func(ctx context.Context) error {
		return s.store.Atomically(ctx, func(tx Store) error {
			reservation, err := tx.Reservations().GetByID(ctx, reservationID)
			if err != nil {
				return persistenceError("load reservation", err)
			}
			if reservation.IsExpired(time.Now()) {
				return &StateError{ReservationID: reservation.ID, From: ReservationExpired, To: ReservationConfirmed}
			}
			if err := reservation.Confirm(); err != nil {
				return err
			}

			item, err := s.loadLedger(ctx, tx, reservation.ProductID)
			if err != nil {
				return err
			}
			if err := item.ConfirmReservation(reservation.Quantity); err != nil {
				return err
			}

			if err := tx.Ledgers().Update(ctx, item); err != nil {
				return persistenceError("update ledger", err)
			}
			if err := tx.Reservations().Update(ctx, reservation); err != nil {
				return persistenceError("update reservation", err)
			}
			movement := NewStockMovement(reservation.ProductID, MovementStockOut, reservation.Quantity,
				item.QuantityAvailable, item.QuantityAvailable, reservation.OrderID.String(), "Reservation confirmed")
			if err := tx.Movements().Create(ctx, movement); err != nil {
				return persistenceError("append movement", err)
			}
			confirmed = reservation
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"reservation_id": confirmed.ID,
		"order_id":       confirmed.OrderID,
		"product_id":     confirmed.ProductID,
	}).Info("Reservation confirmed")
	return confirmed, nil
}

// ExpireReservations releases reserved holds whose ttl has passed and returns
// how many were expired. Holds whose lock is busy are left for the next sweep.
func (s *Service) ExpireReservations(ctx context.Context) (int, error) {
	due, err := s.store.Reservations().ListExpired(ctx, time.Now().UTC(), expiryBatchSize)
	if err != nil {
		return 0, persistenceError("list expired reservations", err)
	}

	expired := 0
	var errs []error
	for _, reservation := range due {
		ok, err := s.releaseReservation(ctx, reservation.ID, reservation.ProductID, "", true)
		switch {
		case errors.Is(err, ErrLockUnavailable):
			continue
		case err != nil:
			errs = append(errs, err)
		case ok:
			expired++
			s.metrics.Release("expired")
		}
	}

	if expired > 0 {
		s.metrics.ReservationsExpired(expired)
		s.logger.WithField("count", expired).Info("Expired stale reservations")
	}
	return expired, errors.Join(errs...)
}

// RunExpirySweeper expires stale reservations every interval until ctx ends
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ExpireReservations(ctx); err != nil {
				s.logger.WithError(err).Warn("Reservation expiry sweep finished with errors")
			}
		}
	}
}
