package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	"github.com/your-org/stock-reservation/internal/infrastructure/database/memory"
	httpapi "github.com/your-org/stock-reservation/internal/interfaces/http"
	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
	"github.com/your-org/stock-reservation/internal/pkg/metrics"
)

type api struct {
	handler http.Handler
	store   *memory.InventoryStore
	locker  *lock.MemoryLocker
}

type envelope struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
}

func newAPI(t *testing.T, checks map[string]httpapi.HealthCheck) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	cfg := &config.Config{
		App:    config.AppConfig{Environment: "test", Version: "test"},
		Server: config.ServerConfig{Port: "0", RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedMethods: []string{"GET", "POST", "PUT"},
			CORSAllowedHeaders: []string{"Content-Type"},
		},
	}
	topics := config.TopicConfig{
		StockReserved:          "stock.reserved",
		StockReservationFailed: "stock.reservation_failed",
		PaymentCompleted:       "payment.completed",
		PaymentFailed:          "payment.failed",
	}

	a := &api{store: memory.NewInventoryStore(), locker: lock.NewMemoryLocker()}
	m := metrics.New("test")
	opts := inventory.Options{
		Store:     a.store,
		Locker:    a.locker,
		Publisher: events.NewRecorder(),
		Logger:    logger,
		Metrics:   m,
		Config:    config.ReservationConfig{LockTTL: 30 * time.Second, ReservationTTL: 30 * time.Minute, CompensateOnFailure: true},
		Topics:    topics,
	}
	processor := payment.NewProcessor(payment.ProcessorOptions{
		Repository:  memory.NewPaymentRepository(),
		Gateway:     payment.NewMockGateway(1, 0, 7),
		Idempotency: idempotency.NewMemoryStore(time.Hour),
		Locker:      a.locker,
		Publisher:   events.NewRecorder(),
		Logger:      logger,
		Metrics:     m,
		Config:      config.PaymentConfig{LockTTL: 30 * time.Second},
		Topics:      topics,
	})

	server := httpapi.NewServer(cfg, httpapi.Dependencies{
		Inventory:   inventory.NewService(opts),
		Coordinator: inventory.NewCoordinator(opts),
		Payments:    processor,
		Metrics:     m,
		Logger:      logger,
		Checks:      checks,
	})
	a.handler = server.Handler()
	return a
}

func (a *api) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func (a *api) createItem(t *testing.T, qty int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	code, env := a.do(t, http.MethodPost, "/api/v1/inventory", gin.H{
		"product_id":       id,
		"product_name":     "Widget",
		"sku":              "W-" + id.String()[:6],
		"initial_quantity": qty,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	return id
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestInventoryEndpoints(t *testing.T) {
	a := newAPI(t, nil)
	product := a.createItem(t, 20)
	base := "/api/v1/inventory/" + product.String()

	code, env := a.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	item := decode[inventory.InventoryItem](t, env.Data)
	assert.Equal(t, 20, item.QuantityAvailable)

	code, env = a.do(t, http.MethodGet, base+"/check?quantity=25", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decode[inventory.StockCheck](t, env.Data).IsAvailable)

	code, _ = a.do(t, http.MethodPost, base+"/add-stock", gin.H{"quantity": 5, "reference": "PO-1"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodPost, base+"/remove-stock", gin.H{"quantity": 3})
	assert.Equal(t, http.StatusOK, code)
	code, env = a.do(t, http.MethodPost, base+"/adjust-stock", gin.H{"new_quantity": 8})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 8, decode[inventory.InventoryItem](t, env.Data).QuantityAvailable)

	code, env = a.do(t, http.MethodGet, "/api/v1/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Count)

	code, _ = a.do(t, http.MethodPut, base+"/reorder-level", gin.H{"reorder_level": 2})
	assert.Equal(t, http.StatusOK, code)

	code, env = a.do(t, http.MethodGet, base+"/movements?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4, env.Count)
}

func TestInventoryErrors(t *testing.T) {
	a := newAPI(t, nil)
	product := a.createItem(t, 5)
	base := "/api/v1/inventory/" + product.String()

	code, _ := a.do(t, http.MethodGet, "/api/v1/inventory/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodGet, "/api/v1/inventory/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/inventory", gin.H{"product_id": product, "product_name": "Dup", "sku": "D"})
	assert.Equal(t, http.StatusConflict, code)

	code, env := a.do(t, http.MethodPost, base+"/remove-stock", gin.H{"quantity": 6})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "Insufficient stock")

	code, _ = a.do(t, http.MethodGet, base+"/check?quantity=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	lease, err := a.locker.Acquire(context.Background(), inventory.LockKey(product), time.Minute)
	require.NoError(t, err)
	code, _ = a.do(t, http.MethodPost, base+"/add-stock", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusLocked, code)
	_, err = a.locker.Release(context.Background(), lease)
	require.NoError(t, err)

	a.store.FailOn("ledgers.update", errors.New("connection reset"))
	code, env = a.do(t, http.MethodPost, base+"/add-stock", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to update stock", env.Error)
}

func TestReservationSagaOverHTTP(t *testing.T) {
	a := newAPI(t, nil)
	product := a.createItem(t, 10)
	orderID := uuid.New()

	code, env := a.do(t, http.MethodPost, "/api/v1/events/order-created", events.OrderCreated{
		OrderID: orderID,
		Items:   []events.OrderItem{{ProductID: product, Quantity: 4}},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	result := decode[inventory.SagaResult](t, env.Data)
	require.Len(t, result.Reservations, 1)

	code, env = a.do(t, http.MethodPost, "/api/v1/events/order-created", events.OrderCreated{
		OrderID: uuid.New(),
		Items:   []events.OrderItem{{ProductID: product, Quantity: 7}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, decode[inventory.SagaResult](t, env.Data).Success)

	code, env = a.do(t, http.MethodGet, "/api/v1/reservations?order_id="+orderID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Count)

	code, _ = a.do(t, http.MethodPost, "/api/v1/events/payment-failed", events.PaymentFailed{OrderID: orderID, Reason: "declined"})
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/confirm", result.Reservations[0].ID), nil)
	assert.Equal(t, http.StatusConflict, code, env.Error)

	code, _ = a.do(t, http.MethodPost, "/api/v1/events/payment-failed", events.PaymentFailed{OrderID: uuid.New()})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/events/order-created", gin.H{"order_id": uuid.New(), "items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/events/order-created", gin.H{
		"order_id": uuid.New(),
		"items":    []gin.H{{"product_id": product, "quantity": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfirmOverHTTP(t *testing.T) {
	a := newAPI(t, nil)
	product := a.createItem(t, 10)

	_, env := a.do(t, http.MethodPost, "/api/v1/events/order-created", events.OrderCreated{
		OrderID: uuid.New(),
		Items:   []events.OrderItem{{ProductID: product, Quantity: 2}},
	})
	result := decode[inventory.SagaResult](t, env.Data)

	code, env := a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/confirm", result.Reservations[0].ID), nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, inventory.ReservationConfirmed, decode[inventory.StockReservation](t, env.Data).Status)

	code, _ = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%s/confirm", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPaymentOverHTTP(t *testing.T) {
	a := newAPI(t, nil)
	orderID := uuid.New()
	body := gin.H{"order_id": orderID, "amount": "42.50"}

	code, env := a.do(t, http.MethodPost, "/api/v1/events/inventory-reserved", body)
	require.Equal(t, http.StatusOK, code, env.Error)
	first := decode[payment.Result](t, env.Data)
	assert.True(t, first.Success)

	code, env = a.do(t, http.MethodPost, "/api/v1/events/inventory-reserved", body)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[payment.Result](t, env.Data).Replayed)

	code, env = a.do(t, http.MethodGet, "/api/v1/payments/order/"+orderID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Count)

	code, _ = a.do(t, http.MethodPost, "/api/v1/events/inventory-reserved", gin.H{"order_id": uuid.New(), "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := newAPI(t, map[string]httpapi.HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	code, _ := healthy.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = healthy.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	healthy.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_request_duration_seconds")

	broken := newAPI(t, map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("down") },
	})
	code, _ = broken.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
