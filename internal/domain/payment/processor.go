// internal/domain/payment/processor.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
	"github.com/your-org/stock-reservation/internal/pkg/metrics"
)

const defaultCurrency = "USD"

// Result is the outcome of processing one InventoryReserved event. It is what
// the idempotency store remembers, so a replay returns it unchanged.
type Result struct {
	OrderID       uuid.UUID  `json:"order_id"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"`
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Status        Status     `json:"status,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Replayed      bool       `json:"replayed"`
}

// ProcessorOptions wires the payment saga
type ProcessorOptions struct {
	Repository  Repository
	Gateway     Gateway
	Idempotency idempotency.Store
	Locker      lock.Locker
	Publisher   events.Publisher
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
	Config      config.PaymentConfig
	Topics      config.TopicConfig
}

// Processor charges an order once its stock is reserved
type Processor struct {
	repo      Repository
	gateway   Gateway
	store     idempotency.Store
	guard     *lock.Guard
	publisher events.Publisher
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	topics    config.TopicConfig
}

// NewProcessor creates the payment saga processor
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	m := opts.Metrics

	return &Processor{
		repo:      opts.Repository,
		gateway:   opts.Gateway,
		store:     opts.Idempotency,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		topics:    opts.Topics,
		guard: &lock.Guard{
			Locker:  opts.Locker,
			Options: lock.Options{TTL: opts.Config.LockTTL},
			Logger:  logger,
			Observe: func(_ string, event lock.Event) { m.LockEvent(string(event)) },
		},
	}
}

// IdempotencyKey is the idempotency store key of an order's payment
func IdempotencyKey(orderID uuid.UUID) string {
	return "payment:" + orderID.String()
}

// LockKey serializes concurrent deliveries for the same order
func LockKey(orderID uuid.UUID) string {
	return "payment:lock:" + orderID.String()
}

// ProcessInventoryReserved charges the order exactly once. Redelivered events
// get the first delivery's result back without touching the gateway.
// Declines and gateway errors are reported through a failed Result; the
// returned error is reserved for cases where nothing could be decided or
// recorded. An earlier attempt without a recorded outcome is never charged
// again and yields ErrPaymentPending.
func (p *Processor) ProcessInventoryReserved(ctx context.Context, evt events.InventoryReserved) (*Result, error) {
	log := p.logger.WithFields(logrus.Fields{
		"order_id": evt.OrderID,
		"amount":   evt.Amount.String(),
	})

	if evt.OrderID == uuid.Nil || !evt.Amount.IsPositive() {
		p.metrics.Payment("invalid")
		return &Result{OrderID: evt.OrderID, Message: "Invalid payment request"},
			fmt.Errorf("%w: order %s amount %s", ErrInvalidPayment, evt.OrderID, evt.Amount)
	}

	// a pending attempt seen here may still be in flight; the lock decides
	if result, ok, err := p.replay(ctx, evt.OrderID); ok || (err != nil && !errors.Is(err, ErrPaymentPending)) {
		return p.finish(evt.OrderID, result, err)
	}

	var result *Result
	err := p.guard.Do(ctx, LockKey(evt.OrderID), func(ctx context.Context) error {
		// another delivery may have finished while this one waited
		replayed, ok, err := p.replay(ctx, evt.OrderID)
		if errors.Is(err, ErrPaymentPending) {
			log.WithError(err).Error("Payment attempt has no recorded outcome; refusing to charge again")
		}
		if err != nil || ok {
			result = replayed
			return err
		}

		result, err = p.charge(ctx, evt, log)
		return err
	})

	var acqErr *lock.AcquireError
	if errors.As(err, &acqErr) {
		err = fmt.Errorf("%w: %w", ErrLockUnavailable, acqErr)
	}
	return p.finish(evt.OrderID, result, err)
}

// ListByOrder returns every payment attempt of an order, newest first
func (p *Processor) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	payments, err := p.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: list payments: %w", ErrPersistence, err)
	}
	return payments, nil
}

func (p *Processor) finish(orderID uuid.UUID, result *Result, err error) (*Result, error) {
	if err != nil && result == nil {
		result = &Result{OrderID: orderID, Message: "Payment could not be processed"}
	}
	return result, err
}

// replay returns the recorded result for orderID, if any. The idempotency
// store is consulted first; a terminal payment row is the fallback for keys
// that expired or were never written.
func (p *Processor) replay(ctx context.Context, orderID uuid.UUID) (*Result, bool, error) {
	key := IdempotencyKey(orderID)

	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: idempotency lookup: %w", ErrPersistence, err)
	}
	if exists {
		value, err := p.store.Get(ctx, key)
		if err != nil && !errors.Is(err, idempotency.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: idempotency lookup: %w", ErrPersistence, err)
		}
		var result Result
		if err == nil && json.Unmarshal([]byte(value), &result) == nil {
			result.Replayed = true
			p.metrics.IdempotentReplay()
			p.logger.WithField("order_id", orderID).Info("Payment already processed, returning recorded result")
			return &result, true, nil
		}
	}

	payments, err := p.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: list payments: %w", ErrPersistence, err)
	}
	var pending *Payment
	for i := range payments {
		if !payments[i].IsTerminal() {
			pending = &payments[i]
			continue
		}
		result := resultFrom(&payments[i])
		p.remember(ctx, result)
		result.Replayed = true
		p.metrics.IdempotentReplay()
		p.logger.WithField("order_id", orderID).Info("Payment already recorded, returning stored outcome")
		return result, true, nil
	}

	// a started attempt whose outcome was never recorded may have charged
	if pending != nil {
		id := pending.ID
		return &Result{
			OrderID:   orderID,
			PaymentID: &id,
			Status:    pending.Status,
			Message:   "Payment outcome unknown, awaiting reconciliation",
		}, false, fmt.Errorf("%w: payment %s is %s", ErrPaymentPending, id, pending.Status)
	}
	return nil, false, nil
}

func (p *Processor) charge(ctx context.Context, evt events.InventoryReserved, log logrus.FieldLogger) (*Result, error) {
	payment, err := NewPayment(evt.OrderID, evt.Amount)
	if err != nil {
		return nil, err
	}
	if err := payment.MarkProcessing(); err != nil {
		return nil, err
	}
	if err := p.repo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("%w: create payment: %w", ErrPersistence, err)
	}

	log = log.WithField("payment_id", payment.ID)
	log.Info("Charging payment")

	charge, err := p.gateway.Charge(ctx, ChargeRequest{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  defaultCurrency,
	})
	switch {
	case err != nil:
		log.WithError(err).Error("Payment gateway call failed")
		err = payment.MarkFailed("Payment gateway error")
	case !charge.Success:
		payment.GatewayResponse = charge.Raw
		err = payment.MarkFailed(charge.Message)
	default:
		err = payment.MarkSuccess(charge.TransactionID, charge.Raw)
	}
	if err != nil {
		return nil, err
	}

	// recording the outcome must outlive a cancelled delivery. The
	// idempotency record goes first so a failed row update cannot lead to
	// a second charge.
	saveCtx := context.WithoutCancel(ctx)
	result := resultFrom(payment)
	p.remember(saveCtx, result)
	p.metrics.Payment(string(payment.Status))

	var updateErr error
	if err := p.repo.Update(saveCtx, payment); err != nil {
		log.WithError(err).WithField("status", payment.Status).Error("Payment outcome could not be recorded; row left in processing")
		updateErr = fmt.Errorf("%w: update payment: %w", ErrPersistence, err)
	}

	if payment.Status == StatusSuccess {
		log.WithField("transaction_id", payment.TransactionID).Info("Payment successful")
		p.publish(saveCtx, p.topics.PaymentCompleted, events.PaymentCompleted{
			OrderID:       payment.OrderID,
			PaymentID:     payment.ID,
			TransactionID: payment.TransactionID,
			Amount:        payment.Amount,
			Timestamp:     time.Now().UTC(),
		}, payment.OrderID)
	} else {
		log.WithField("reason", payment.FailureReason).Warn("Payment failed")
		paymentID := payment.ID
		p.publish(saveCtx, p.topics.PaymentFailed, events.PaymentFailed{
			OrderID:   payment.OrderID,
			PaymentID: &paymentID,
			Reason:    payment.FailureReason,
			Timestamp: time.Now().UTC(),
		}, payment.OrderID)
	}

	return result, updateErr
}

// remember records result under the order's key; first write wins
func (p *Processor) remember(ctx context.Context, result *Result) {
	stored := *result
	stored.Replayed = false
	value, err := json.Marshal(stored)
	if err != nil {
		p.logger.WithError(err).Error("Failed to encode payment result")
		return
	}
	if _, err := p.store.Save(ctx, IdempotencyKey(result.OrderID), string(value)); err != nil {
		p.logger.WithError(err).WithField("order_id", result.OrderID).Error("Failed to save idempotency record")
	}
}

func (p *Processor) publish(ctx context.Context, topic string, payload interface{}, orderID uuid.UUID) {
	if topic == "" {
		return
	}
	if err := p.publisher.Publish(ctx, topic, orderID.String(), payload); err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to publish event")
	}
}

func resultFrom(payment *Payment) *Result {
	id := payment.ID
	result := &Result{
		OrderID:       payment.OrderID,
		PaymentID:     &id,
		Success:       payment.Status == StatusSuccess,
		Status:        payment.Status,
		TransactionID: payment.TransactionID,
	}
	if result.Success {
		result.Message = "Payment successful"
	} else {
		result.Message = "Payment failed: " + payment.FailureReason
	}
	return result
}
