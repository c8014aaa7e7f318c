// internal/domain/inventory/saga.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/your-org/stock-reservation/internal/domain/events"
)

const abortReason = "order reservation aborted"

// SagaResult is the outcome of handling one order event
type SagaResult struct {
	OrderID      uuid.UUID          `json:"order_id"`
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	Reservations []StockReservation `json:"reservations,omitempty"`
	Released     int                `json:"released"`
}

// Coordinator reserves stock when an order is created and gives it back when
// the order's payment fails
type Coordinator struct {
	*core
}

// NewCoordinator creates the reservation saga coordinator
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{core: newCore(opts)}
}

// ReserveOrder reserves every line of the order in turn and stops at the first
// line that fails. With compensation enabled the lines reserved before the
// failure are released again, so an order is held entirely or not at all.
// Redelivered events find their existing reservations and reserve nothing twice.
func (c *Coordinator) ReserveOrder(ctx context.Context, evt events.OrderCreated) (*SagaResult, error) {
	log := c.logger.WithField("order_id", evt.OrderID)
	result := &SagaResult{OrderID: evt.OrderID}

	fail := func(item events.OrderItem, err error) (*SagaResult, error) {
		c.metrics.Reservation(Kind(err))
		log.WithError(err).WithFields(logrus.Fields{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
		}).Warn("Stock reservation failed")

		c.publishFailure(ctx, evt.OrderID, item, err)
		if c.cfg.CompensateOnFailure && len(result.Reservations) > 0 {
			result.Released = c.compensate(ctx, evt.OrderID, result.Reservations)
			result.Reservations = c.reload(context.WithoutCancel(ctx), log, evt.OrderID, result.Reservations)
		}

		result.Message = failureMessage(err)
		return result, err
	}

	// every raw line must be positive; merging would hide a negative one
	for _, item := range evt.Items {
		if item.Quantity <= 0 {
			return fail(item, &StockError{Kind: ErrInvalidQuantity, ProductID: item.ProductID, OrderID: evt.OrderID, Requested: item.Quantity})
		}
	}

	items := mergeItems(evt.Items)
	if len(items) == 0 {
		result.Message = "Order has no items to reserve"
		return result, fmt.Errorf("%w: order %s has no items", ErrInvalidQuantity, evt.OrderID)
	}

	log.WithField("items", len(items)).Info("Reserving stock for order")

	for _, item := range items {
		reservation, replayed, err := c.reserveItem(ctx, evt.OrderID, item)
		if err != nil {
			return fail(item, err)
		}

		result.Reservations = append(result.Reservations, *reservation)
		if replayed {
			log.WithField("product_id", item.ProductID).Info("Reservation already exists, skipping")
			continue
		}

		c.metrics.Reservation("success")
		c.publish(ctx, c.topics.StockReserved, evt.OrderID.String(), events.StockReserved{
			ReservationID: reservation.ID,
			OrderID:       reservation.OrderID,
			ProductID:     reservation.ProductID,
			Quantity:      reservation.Quantity,
			ReservedAt:    reservation.ReservedAt,
		})
	}

	result.Success = true
	result.Message = "Stock reserved successfully"
	log.Info("Stock reserved for order")
	return result, nil
}

// ReleaseOrder returns every reserved hold of the order to available stock.
// Holds already released or expired are skipped so redelivery is harmless.
func (c *Coordinator) ReleaseOrder(ctx context.Context, evt events.PaymentFailed) (*SagaResult, error) {
	log := c.logger.WithField("order_id", evt.OrderID)
	result := &SagaResult{OrderID: evt.OrderID}

	reservations, err := c.store.Reservations().ListByOrderID(ctx, evt.OrderID)
	if err != nil {
		err = persistenceError("list reservations", err)
		result.Message = failureMessage(err)
		return result, err
	}
	if len(reservations) == 0 {
		c.metrics.Release(Kind(ErrReservationNotFound))
		result.Message = fmt.Sprintf("No reservations found for order %s", evt.OrderID)
		return result, fmt.Errorf("%w: order %s", ErrReservationNotFound, evt.OrderID)
	}

	reason := "payment failed"
	if evt.Reason != "" {
		reason = "payment failed: " + evt.Reason
	}

	var errs []error
	for _, reservation := range reservations {
		released, err := c.releaseReservation(ctx, reservation.ID, reservation.ProductID, reason, false)
		if err != nil {
			c.metrics.Release(Kind(err))
			log.WithError(err).WithField("reservation_id", reservation.ID).Error("Failed to release reservation")
			errs = append(errs, err)
			continue
		}
		if released {
			c.metrics.Release("success")
			result.Released++
		}
	}

	result.Reservations = c.reload(ctx, log, evt.OrderID, reservations)

	if err := errors.Join(errs...); err != nil {
		result.Message = failureMessage(errs[0])
		return result, err
	}

	result.Success = true
	if result.Released == 0 {
		result.Message = fmt.Sprintf("Reservations for order %s were already released", evt.OrderID)
	} else {
		result.Message = fmt.Sprintf("Released %d reservation(s) for order %s", result.Released, evt.OrderID)
	}
	log.WithField("released", result.Released).Info("Stock released for order")
	return result, nil
}

// reserveItem reserves one line under its product lock. An existing
// reservation of the same order and product is returned as a replay.
func (c *Coordinator) reserveItem(ctx context.Context, orderID uuid.UUID, item events.OrderItem) (*StockReservation, bool, error) {
	if item.Quantity <= 0 {
		return nil, false, &StockError{Kind: ErrInvalidQuantity, ProductID: item.ProductID, OrderID: orderID, Requested: item.Quantity}
	}

	var (
		reservation *StockReservation
		replayed    bool
	)
	err := c.withProductLock(ctx, item.ProductID, func(ctx context.Context) error {
		return c.store.Atomically(ctx, func(tx Store) error {
			existing, err := tx.Reservations().ListByOrderID(ctx, orderID)
			if err != nil {
				return persistenceError("list reservations", err)
			}
			for i := range existing {
				if existing[i].ProductID != item.ProductID {
					continue
				}
				if existing[i].Status.IsTerminal() && existing[i].Status != ReservationConfirmed {
					return &StateError{ReservationID: existing[i].ID, From: existing[i].Status, To: ReservationReserved}
				}
				reservation, replayed = &existing[i], true
				return nil
			}

			ledger, err := c.loadLedger(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			before := ledger.QuantityAvailable
			if err := ledger.Reserve(item.Quantity); err != nil {
				var stockErr *StockError
				if errors.As(err, &stockErr) {
					stockErr.OrderID = orderID
				}
				return err
			}

			created, err := NewStockReservation(item.ProductID, orderID, item.Quantity, c.cfg.ReservationTTL)
			if err != nil {
				return err
			}
			if err := tx.Ledgers().Update(ctx, ledger); err != nil {
				return persistenceError("update ledger", err)
			}
			if err := tx.Reservations().Create(ctx, created); err != nil {
				return persistenceError("create reservation", err)
			}
			movement := NewStockMovement(item.ProductID, MovementReserved, item.Quantity,
				before, ledger.QuantityAvailable, orderID.String(), fmt.Sprintf("Reserved for order %s", orderID))
			if err := tx.Movements().Create(ctx, movement); err != nil {
				return persistenceError("append movement", err)
			}

			reservation = created
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return reservation, replayed, nil
}

// compensate releases the holds taken before a failed line, newest first, and
// returns how many were released. It runs even if ctx was cancelled.
func (c *Coordinator) compensate(ctx context.Context, orderID uuid.UUID, reservations []StockReservation) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	released := 0
	for i := len(reservations) - 1; i >= 0; i-- {
		r := reservations[i]
		ok, err := c.releaseReservation(ctx, r.ID, r.ProductID, abortReason, false)
		if err != nil {
			c.metrics.Release(Kind(err))
			c.logger.WithError(err).WithFields(logrus.Fields{
				"order_id":       orderID,
				"reservation_id": r.ID,
				"expires_at":     r.ExpiresAt,
			}).Error("Compensation failed; reservation stays held until it expires")
			continue
		}
		if ok {
			c.metrics.Release("compensated")
			released++
		}
	}
	return released
}

// reload returns the current state of held, which may be stale after a
// release. On a lookup error held is returned unchanged.
func (c *Coordinator) reload(ctx context.Context, log logrus.FieldLogger, orderID uuid.UUID, held []StockReservation) []StockReservation {
	current, err := c.store.Reservations().ListByOrderID(ctx, orderID)
	if err != nil {
		log.WithError(err).Warn("Failed to reload reservations after release")
		return held
	}
	byID := make(map[uuid.UUID]StockReservation, len(current))
	for _, r := range current {
		byID[r.ID] = r
	}
	fresh := make([]StockReservation, 0, len(held))
	for _, r := range held {
		if updated, ok := byID[r.ID]; ok {
			r = updated
		}
		fresh = append(fresh, r)
	}
	return fresh
}

func (c *Coordinator) publishFailure(ctx context.Context, orderID uuid.UUID, item events.OrderItem, err error) {
	evt := events.StockReservationFailed{
		OrderID:           orderID,
		ProductID:         item.ProductID,
		RequestedQuantity: item.Quantity,
		Reason:            failureMessage(err),
		FailedAt:          time.Now().UTC(),
	}
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		evt.AvailableQuantity = stockErr.Available
	}
	c.publish(ctx, c.topics.StockReservationFailed, orderID.String(), evt)
}

// mergeItems folds repeated products into one line, keeping first-seen order
func mergeItems(items []events.OrderItem) []events.OrderItem {
	index := make(map[uuid.UUID]int, len(items))
	merged := make([]events.OrderItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// failureMessage exposes domain failures verbatim and hides everything else
func failureMessage(err error) string {
	var stockErr *StockError
	if errors.As(err, &stockErr) && !errors.Is(err, ErrPersistence) {
		return stockErr.Error()
	}
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return stateErr.Error()
	}
	if errors.Is(err, ErrReservationNotFound) || errors.Is(err, ErrInvalidQuantity) {
		return err.Error()
	}
	return "Failed to process order reservation"
}
