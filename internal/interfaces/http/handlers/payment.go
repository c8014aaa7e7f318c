// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/stock-reservation/internal/domain/payment"
)

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	processor *payment.Processor
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(processor *payment.Processor) *PaymentHandler {
	return &PaymentHandler{processor: processor}
}

// ListByOrder handles GET /payments/order/:orderId
func (h *PaymentHandler) ListByOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "orderId", "order ID")
	if !ok {
		return
	}

	payments, err := h.processor.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err, "Failed to retrieve payments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payments retrieved successfully",
		"data":    payments,
		"count":   len(payments),
	})
}
