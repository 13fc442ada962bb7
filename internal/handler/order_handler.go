package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marshallmay28/zetumall-backend/internal/middleware"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
	"github.com/Marshallmay28/zetumall-backend/internal/services"
)

// CreateOrder opens an order and its escrow in one unit.
// POST /api/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req services.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	order, err := h.Orders.Create(c.Request.Context(), middleware.CurrentIdentity(c), req)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder returns one order to its buyer, seller or an admin.
// GET /api/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.Orders.Get(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListMyOrders returns the caller's orders.
// GET /api/orders
func (h *Handler) ListMyOrders(c *gin.Context) {
	orders, err := h.Orders.ListForBuyer(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ListStoreOrders returns a store's orders to its owner.
// GET /api/stores/:id/orders
func (h *Handler) ListStoreOrders(c *gin.Context) {
	orders, err := h.Orders.ListForStore(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus advances the order lifecycle on behalf of the
// store owner.
// PATCH /api/orders/:id/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder withdraws a PENDING order for its buyer.
// POST /api/orders/:id/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.Orders.Cancel(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
