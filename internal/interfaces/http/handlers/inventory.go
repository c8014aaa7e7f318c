// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
)

// InventoryHandler handles inventory endpoints
type InventoryHandler struct {
	inventoryService *inventory.Service
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{inventoryService: service}
}

// CreateItem handles POST /inventory
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req inventory.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.inventoryService.CreateItem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to create inventory item")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Inventory item created successfully",
		"data":    item,
	})
}

// GetItem handles GET /inventory/:productId
func (h *InventoryHandler) GetItem(c *gin.Context) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}

	item, err := h.inventoryService.GetItem(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err, "Failed to retrieve inventory item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Inventory item retrieved successfully",
		"data":    item,
	})
}

// CheckStock handles GET /inventory/:productId/check?quantity=
func (h *InventoryHandler) CheckStock(c *gin.Context) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}
	quantity, ok := intQuery(c, "quantity", 1)
	if !ok {
		return
	}

	check, err := h.inventoryService.CheckStock(c.Request.Context(), productID, quantity)
	if err != nil {
		respondError(c, err, "Failed to check stock")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock checked successfully",
		"data":    check,
	})
}

// ListLowStock handles GET /inventory/low-stock
func (h *InventoryHandler) ListLowStock(c *gin.Context) {
	items, err := h.inventoryService.ListLowStock(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to retrieve low stock items")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Low stock items retrieved successfully",
		"data":    items,
		"count":   len(items),
	})
}

// AddStock handles POST /inventory/:productId/add-stock
func (h *InventoryHandler) AddStock(c *gin.Context) {
	h.changeStock(c, h.inventoryService.AddStock, "Stock added successfully")
}

// RemoveStock handles POST /inventory/:productId/remove-stock
func (h *InventoryHandler) RemoveStock(c *gin.Context) {
	h.changeStock(c, h.inventoryService.RemoveStock, "Stock removed successfully")
}

type stockChange func(ctx context.Context, productID uuid.UUID, req inventory.StockChangeRequest) (*inventory.InventoryItem, error)

func (h *InventoryHandler) changeStock(c *gin.Context, apply stockChange, message string) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}

	var req inventory.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := apply(c.Request.Context(), productID, req)
	if err != nil {
		respondError(c, err, "Failed to update stock")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    item,
	})
}

// AdjustStock handles POST /inventory/:productId/adjust-stock
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}

	var req inventory.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.inventoryService.AdjustStock(c.Request.Context(), productID, req)
	if err != nil {
		respondError(c, err, "Failed to adjust stock")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data":    item,
	})
}

// UpdateReorderLevel handles PUT /inventory/:productId/reorder-level
func (h *InventoryHandler) UpdateReorderLevel(c *gin.Context) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}

	var req struct {
		ReorderLevel *int `json:"reorder_level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	item, err := h.inventoryService.UpdateReorderLevel(c.Request.Context(), productID, *req.ReorderLevel)
	if err != nil {
		respondError(c, err, "Failed to update reorder level")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reorder level updated successfully",
		"data":    item,
	})
}

// ListMovements handles GET /inventory/:productId/movements?limit=
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	productID, ok := uuidParam(c, "productId", "product ID")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}

	movements, err := h.inventoryService.ListMovements(c.Request.Context(), productID, limit)
	if err != nil {
		respondError(c, err, "Failed to retrieve stock movements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
		"count":   len(movements),
	})
}
