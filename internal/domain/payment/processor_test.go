package payment_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	"github.com/your-org/stock-reservation/internal/infrastructure/database/memory"
	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
)

var topics = config.TopicConfig{
	PaymentFailed:    "payment.failed",
	PaymentCompleted: "payment.completed",
}

type stubGateway struct {
	calls  atomic.Int32
	result *payment.ChargeResult
	err    error
	delay  time.Duration
}

func (g *stubGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return nil, g.err
	}
	r := *g.result
	return &r, nil
}

type fixture struct {
	repo      *memory.PaymentRepository
	store     *idempotency.MemoryStore
	locker    *lock.MemoryLocker
	published *events.Recorder
	processor *payment.Processor
}

func newFixture(t *testing.T, gateway payment.Gateway) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		repo:      memory.NewPaymentRepository(),
		store:     idempotency.NewMemoryStore(24 * time.Hour),
		locker:    lock.NewMemoryLocker(),
		published: events.NewRecorder(),
	}
	f.processor = payment.NewProcessor(payment.ProcessorOptions{
		Repository:  f.repo,
		Gateway:     gateway,
		Idempotency: f.store,
		Locker:      f.locker,
		Publisher:   f.published,
		Logger:      logger,
		Config:      config.PaymentConfig{LockTTL: 30 * time.Second},
		Topics:      topics,
	})
	return f
}

func approved() *stubGateway {
	return &stubGateway{result: &payment.ChargeResult{Success: true, TransactionID: "TXN-1", Message: "Payment successful"}}
}

func reserved(orderID uuid.UUID, amount int64) events.InventoryReserved {
	return events.InventoryReserved{OrderID: orderID, Amount: decimal.NewFromInt(amount)}
}

func TestProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	orderID := uuid.New()

	first, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 50))
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.Replayed)
	require.NotNil(t, first.PaymentID)

	second, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 50))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	second.Replayed = false
	assert.Equal(t, first, second)

	assert.EqualValues(t, 1, gateway.calls.Load())
	payments, err := f.repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, payment.StatusSuccess, payments[0].Status)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(50)))

	stored, err := f.store.Get(ctx, payment.IdempotencyKey(orderID))
	require.NoError(t, err)
	assert.Contains(t, stored, first.PaymentID.String())
	assert.Len(t, f.published.OnTopic(topics.PaymentCompleted), 1)
}

func TestConcurrentDeliveriesChargeOnce(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	gateway.delay = 20 * time.Millisecond
	f := newFixture(t, gateway)
	orderID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*payment.Result
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 10))
			if errors.Is(err, payment.ErrLockUnavailable) {
				return
			}
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, gateway.calls.Load())
	payments, err := f.repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	for _, r := range results {
		assert.Equal(t, payments[0].ID, *r.PaymentID)
	}
}

func TestDeclineIsTerminalAndPublished(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{result: &payment.ChargeResult{Success: false, Message: "Card declined", Raw: `{"status":"declined"}`}}
	f := newFixture(t, gateway)
	orderID := uuid.New()

	result, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 20))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)
	assert.Equal(t, "Payment failed: Card declined", result.Message)

	failed := f.published.OnTopic(topics.PaymentFailed)
	require.Len(t, failed, 1)
	evt := failed[0].(events.PaymentFailed)
	assert.Equal(t, orderID, evt.OrderID)
	assert.Equal(t, "Card declined", evt.Reason)
	require.NotNil(t, evt.PaymentID)

	again, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 20))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.False(t, again.Success)
	assert.EqualValues(t, 1, gateway.calls.Load(), "a failed payment is not retried by redelivery")
}

func TestGatewayErrorIsReportedAsFailure(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{err: payment.ErrGateway}
	f := newFixture(t, gateway)
	orderID := uuid.New()

	result, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 20))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Payment failed: Payment gateway error", result.Message)

	payments, err := f.repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, payment.StatusFailed, payments[0].Status)
	assert.NotNil(t, payments[0].FailedAt)
}

func TestInvalidRequest(t *testing.T) {
	f := newFixture(t, approved())

	_, err := f.processor.ProcessInventoryReserved(context.Background(), reserved(uuid.New(), 0))
	assert.ErrorIs(t, err, payment.ErrInvalidPayment)

	_, err = f.processor.ProcessInventoryReserved(context.Background(), reserved(uuid.Nil, 10))
	assert.ErrorIs(t, err, payment.ErrInvalidPayment)
}

func TestReplayFallsBackToPaymentRecord(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	orderID := uuid.New()

	first, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 5))
	require.NoError(t, err)

	// idempotency entry aged out
	f.store.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })

	second, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 5))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)
	assert.EqualValues(t, 1, gateway.calls.Load())
}

func TestLockBusyIsReported(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	orderID := uuid.New()

	_, err := f.locker.Acquire(ctx, payment.LockKey(orderID), time.Minute)
	require.NoError(t, err)

	result, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 5))
	require.ErrorIs(t, err, payment.ErrLockUnavailable)
	assert.False(t, result.Success)
	assert.EqualValues(t, 0, gateway.calls.Load())
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	f.repo.FailOn("payments.create", errors.New("db down"))

	_, err := f.processor.ProcessInventoryReserved(ctx, reserved(uuid.New(), 5))
	require.ErrorIs(t, err, payment.ErrPersistence)
	assert.EqualValues(t, 0, gateway.calls.Load())
}

func TestFailedOutcomeUpdateDoesNotChargeTwice(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	orderID := uuid.New()
	f.repo.FailOn("payments.update", errors.New("db down"))

	first, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 30))
	require.ErrorIs(t, err, payment.ErrPersistence)
	assert.True(t, first.Success, "the charge outcome is still reported")
	assert.Len(t, f.published.OnTopic(topics.PaymentCompleted), 1)

	second, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 30))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)

	assert.EqualValues(t, 1, gateway.calls.Load())
	payments, err := f.repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Len(t, f.published.OnTopic(topics.PaymentCompleted), 1)
}

func TestUnrecordedAttemptIsNeverRecharged(t *testing.T) {
	ctx := context.Background()
	gateway := approved()
	f := newFixture(t, gateway)
	orderID := uuid.New()

	// an attempt that reached the gateway but never recorded its outcome
	stale, err := payment.NewPayment(orderID, decimal.NewFromInt(15))
	require.NoError(t, err)
	require.NoError(t, stale.MarkProcessing())
	require.NoError(t, f.repo.Create(ctx, stale))

	result, err := f.processor.ProcessInventoryReserved(ctx, reserved(orderID, 15))
	require.ErrorIs(t, err, payment.ErrPaymentPending)
	assert.False(t, result.Success)
	require.NotNil(t, result.PaymentID)
	assert.Equal(t, stale.ID, *result.PaymentID)
	assert.Equal(t, payment.StatusProcessing, result.Status)

	assert.EqualValues(t, 0, gateway.calls.Load())
	assert.False(t, f.locker.Held(payment.LockKey(orderID)))
	payments, err := f.repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestMockGateway(t *testing.T) {
	ctx := context.Background()
	req := payment.ChargeRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(1)}

	always := payment.NewMockGateway(1, 0, 42)
	r, err := always.Charge(ctx, req)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Regexp(t, `^TXN-\d{14}-[0-9A-F]{8}$`, r.TransactionID)

	never := payment.NewMockGateway(0, 0, 42)
	r, err = never.Charge(ctx, req)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.NotEmpty(t, r.Message)

	slow := payment.NewMockGateway(1, time.Second, 42)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = slow.Charge(cancelled, req)
	assert.ErrorIs(t, err, payment.ErrGateway)
}

func TestHTTPGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charges", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		body := new(strings.Builder)
		_, _ = io.Copy(body, r.Body)

		switch {
		case strings.Contains(body.String(), `"amount":"1"`):
			_, _ = w.Write([]byte(`{"id":"ch_1","status":"captured"}`))
		case strings.Contains(body.String(), `"amount":"2"`):
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"code":"card_declined","description":"Card declined"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	gateway := payment.NewHTTPGateway(server.URL, "key", time.Second)
	ctx := context.Background()

	r, err := gateway.Charge(ctx, payment.ChargeRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "ch_1", r.TransactionID)

	r, err = gateway.Charge(ctx, payment.ChargeRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, "Card declined", r.Message)

	_, err = gateway.Charge(ctx, payment.ChargeRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, payment.ErrGateway)
}
