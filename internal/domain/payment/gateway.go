// internal/domain/payment/gateway.go
package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeRequest is what a gateway needs to charge an order
type ChargeRequest struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// ChargeResult is the gateway's answer. A decline is a result, not an error.
type ChargeResult struct {
	Success       bool
	TransactionID string
	Message       string
	Raw           string
}

// Gateway charges money. An error means the outcome is unknown.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

var declineReasons = []string{
	"Insufficient funds",
	"Card declined",
	"Invalid card details",
	"Payment timeout",
	"Gateway temporarily unavailable",
}

// MockGateway approves a configurable share of charges at random
type MockGateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	delay       time.Duration
}

// NewMockGateway creates a mock gateway. seed 0 picks a time based seed.
func NewMockGateway(successRate float64, delay time.Duration, seed int64) *MockGateway {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockGateway{
		rng:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
		delay:       delay,
	}
}

// Charge simulates network latency and then approves or declines
func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrGateway, ctx.Err())
		case <-timer.C:
		}
	}

	g.mu.Lock()
	approved := g.rng.Float64() < g.successRate
	reason := declineReasons[g.rng.Intn(len(declineReasons))]
	g.mu.Unlock()

	if !approved {
		return &ChargeResult{
			Success: false,
			Message: reason,
			Raw:     fmt.Sprintf(`{"status":"declined","reason":%q}`, reason),
		}, nil
	}

	txnID := newTransactionID(time.Now().UTC())
	return &ChargeResult{
		Success:       true,
		TransactionID: txnID,
		Message:       "Payment successful",
		Raw:           fmt.Sprintf(`{"status":"approved","transaction_id":%q}`, txnID),
	}, nil
}

func newTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102150405"), suffix)
}

// HTTPGateway charges through a remote payment provider's REST API
type HTTPGateway struct {
	client *resty.Client
}

type chargeResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type chargeError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewHTTPGateway creates a gateway client for baseURL authenticated with key
func NewHTTPGateway(baseURL, key string, timeout time.Duration) *HTTPGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if key != "" {
		client.SetBasicAuth(key, "")
	}
	return &HTTPGateway{client: client}
}

// Charge posts the charge. 4xx answers are declines; transport failures and
// 5xx answers leave the outcome unknown and are returned as ErrGateway.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	var (
		ok   chargeResponse
		fail chargeError
	)

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.OrderID.String()).
		SetBody(req).
		SetResult(&ok).
		SetError(&fail).
		Post("/charges")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	raw := string(resp.Body())
	switch {
	case resp.IsSuccess():
		if ok.Status != "captured" && ok.Status != "succeeded" {
			return &ChargeResult{Success: false, Message: firstNonEmpty(ok.Message, "Payment "+ok.Status), Raw: raw}, nil
		}
		return &ChargeResult{Success: true, TransactionID: ok.ID, Message: "Payment successful", Raw: raw}, nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		message := firstNonEmpty(fail.Error.Description, fail.Error.Code, resp.Status())
		return &ChargeResult{Success: false, Message: message, Raw: raw}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGateway, resp.StatusCode())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

