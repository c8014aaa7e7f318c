// internal/interfaces/http/handlers/response.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
)

// statusFor maps a domain error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, inventory.ErrReservationNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrProductExists),
		errors.Is(err, inventory.ErrInvalidState),
		errors.Is(err, inventory.ErrOverRelease),
		errors.Is(err, inventory.ErrConcurrentUpdate),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrPaymentPending):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inventory.ErrInvalidItem),
		errors.Is(err, payment.ErrInvalidPayment):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrLockUnavailable),
		errors.Is(err, payment.ErrLockUnavailable):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server errors get a
// generic message; the cause is attached to the gin context for the logger.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}

func uuidParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return value, true
}
