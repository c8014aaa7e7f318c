// internal/interfaces/http/handlers/events.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
)

// EventHandler accepts saga events over HTTP and answers with the outcome.
// The Kafka consumers drive the same operations.
type EventHandler struct {
	coordinator *inventory.Coordinator
	processor   *payment.Processor
}

// NewEventHandler creates a new event handler
func NewEventHandler(coordinator *inventory.Coordinator, processor *payment.Processor) *EventHandler {
	return &EventHandler{
		coordinator: coordinator,
		processor:   processor,
	}
}

// OrderCreated handles POST /events/order-created
func (h *EventHandler) OrderCreated(c *gin.Context) {
	var evt events.OrderCreated
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.coordinator.ReserveOrder(c.Request.Context(), evt)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{
			"error": result.Message,
			"data":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": result.Message,
		"data":    result,
	})
}

// PaymentFailed handles POST /events/payment-failed
func (h *EventHandler) PaymentFailed(c *gin.Context) {
	var evt events.PaymentFailed
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.coordinator.ReleaseOrder(c.Request.Context(), evt)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{
			"error": result.Message,
			"data":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": result.Message,
		"data":    result,
	})
}

// InventoryReserved handles POST /events/inventory-reserved. A declined
// payment is a completed request and answers 200 with success=false.
func (h *EventHandler) InventoryReserved(c *gin.Context) {
	var evt events.InventoryReserved
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.processor.ProcessInventoryReserved(c.Request.Context(), evt)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{
			"error": result.Message,
			"data":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": result.Message,
		"data":    result,
	})
}
