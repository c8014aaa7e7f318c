// internal/interfaces/messaging/handlers.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	kafkabus "github.com/your-org/stock-reservation/internal/infrastructure/messaging/kafka"
)

// Handlers binds inbound topics to the sagas
type Handlers struct {
	coordinator *inventory.Coordinator
	processor   *payment.Processor
	logger      logrus.FieldLogger
}

// NewHandlers creates the topic handlers
func NewHandlers(coordinator *inventory.Coordinator, processor *payment.Processor, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		processor:   processor,
		logger:      logger,
	}
}

// Routes maps each configured inbound topic to its handler
func (h *Handlers) Routes(topics config.TopicConfig) map[string]kafkabus.Handler {
	return map[string]kafkabus.Handler{
		topics.OrderCreated:      h.OrderCreated,
		topics.PaymentFailed:     h.PaymentFailed,
		topics.InventoryReserved: h.InventoryReserved,
	}
}

// OrderCreated reserves the order's stock. A failed reservation has already
// been reported on the failure topic and compensated, so it is never retried.
func (h *Handlers) OrderCreated(ctx context.Context, msg kafka.Message) error {
	var evt events.OrderCreated
	if err := Decode(msg.Value, &evt); err != nil {
		return err
	}

	result, err := h.coordinator.ReserveOrder(ctx, evt)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": evt.OrderID,
			"message":  result.Message,
		}).Warn("Order reservation failed")
	}
	return nil
}

// PaymentFailed releases the order's stock. Transient failures are retried;
// releasing is safe to repeat.
func (h *Handlers) PaymentFailed(ctx context.Context, msg kafka.Message) error {
	var evt events.PaymentFailed
	if err := Decode(msg.Value, &evt); err != nil {
		return err
	}

	result, err := h.coordinator.ReleaseOrder(ctx, evt)
	if err == nil {
		return nil
	}
	if inventory.IsTransient(err) {
		return err
	}
	h.logger.WithError(err).WithFields(logrus.Fields{
		"order_id": evt.OrderID,
		"message":  result.Message,
	}).Warn("Order release failed")
	return nil
}

// InventoryReserved charges the order. A busy lock means another delivery is
// in flight; retrying lets it replay that delivery's result.
func (h *Handlers) InventoryReserved(ctx context.Context, msg kafka.Message) error {
	var evt events.InventoryReserved
	if err := Decode(msg.Value, &evt); err != nil {
		return err
	}

	result, err := h.processor.ProcessInventoryReserved(ctx, evt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, payment.ErrInvalidPayment):
		return fmt.Errorf("%w: %w", kafkabus.ErrMalformed, err)
	case errors.Is(err, payment.ErrLockUnavailable), errors.Is(err, payment.ErrPersistence):
		return err
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": evt.OrderID,
			"message":  result.Message,
		}).Error("Payment processing failed")
		return nil
	}
}

// Decode unmarshals a JSON event and validates its binding tags
func Decode(data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", kafkabus.ErrMalformed, err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("%w: %w", kafkabus.ErrMalformed, err)
	}
	return nil
}
