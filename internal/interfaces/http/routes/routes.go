// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	"github.com/your-org/stock-reservation/internal/interfaces/http/handlers"
)

// SetupRoutes registers every API route on rg
func SetupRoutes(rg *gin.RouterGroup, inventoryService *inventory.Service, coordinator *inventory.Coordinator, processor *payment.Processor) {
	SetupInventoryRoutes(rg, inventoryService)
	SetupReservationRoutes(rg, inventoryService)
	SetupEventRoutes(rg, coordinator, processor)
	SetupPaymentRoutes(rg, processor)
}

// SetupInventoryRoutes sets up ledger administration routes
func SetupInventoryRoutes(rg *gin.RouterGroup, service *inventory.Service) {
	inventoryHandler := handlers.NewInventoryHandler(service)

	items := rg.Group("/inventory")
	{
		items.POST("", inventoryHandler.CreateItem)
		items.GET("/low-stock", inventoryHandler.ListLowStock)
		items.GET("/:productId", inventoryHandler.GetItem)
		items.GET("/:productId/check", inventoryHandler.CheckStock)
		items.GET("/:productId/movements", inventoryHandler.ListMovements)
		items.POST("/:productId/add-stock", inventoryHandler.AddStock)
		items.POST("/:productId/remove-stock", inventoryHandler.RemoveStock)
		items.POST("/:productId/adjust-stock", inventoryHandler.AdjustStock)
		items.PUT("/:productId/reorder-level", inventoryHandler.UpdateReorderLevel)
	}
}

// SetupReservationRoutes sets up reservation routes
func SetupReservationRoutes(rg *gin.RouterGroup, service *inventory.Service) {
	reservationHandler := handlers.NewReservationHandler(service)

	reservations := rg.Group("/reservations")
	{
		reservations.GET("", reservationHandler.ListByOrder)
		reservations.POST("/:id/confirm", reservationHandler.Confirm)
	}
}

// SetupEventRoutes sets up synchronous saga event ingress
func SetupEventRoutes(rg *gin.RouterGroup, coordinator *inventory.Coordinator, processor *payment.Processor) {
	eventHandler := handlers.NewEventHandler(coordinator, processor)

	events := rg.Group("/events")
	{
		events.POST("/order-created", eventHandler.OrderCreated)
		events.POST("/payment-failed", eventHandler.PaymentFailed)
		events.POST("/inventory-reserved", eventHandler.InventoryReserved)
	}
}

// SetupPaymentRoutes sets up payment routes
func SetupPaymentRoutes(rg *gin.RouterGroup, processor *payment.Processor) {
	paymentHandler := handlers.NewPaymentHandler(processor)

	payments := rg.Group("/payments")
	{
		payments.GET("/order/:orderId", paymentHandler.ListByOrder)
	}
}
