// internal/interfaces/http/handlers/reservation.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
)

// ReservationHandler handles reservation endpoints
type ReservationHandler struct {
	inventoryService *inventory.Service
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(service *inventory.Service) *ReservationHandler {
	return &ReservationHandler{inventoryService: service}
}

// ListByOrder handles GET /reservations?order_id=
func (h *ReservationHandler) ListByOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Query("order_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	reservations, err := h.inventoryService.ListReservations(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err, "Failed to retrieve reservations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservations retrieved successfully",
		"data":    reservations,
		"count":   len(reservations),
	})
}

// Confirm handles POST /reservations/:id/confirm
func (h *ReservationHandler) Confirm(c *gin.Context) {
	reservationID, ok := uuidParam(c, "id", "reservation ID")
	if !ok {
		return
	}

	reservation, err := h.inventoryService.ConfirmReservation(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err, "Failed to confirm reservation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservation confirmed successfully",
		"data":    reservation,
	})
}
