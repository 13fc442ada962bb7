package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marshallmay28/zetumall-backend/internal/middleware"
	"github.com/Marshallmay28/zetumall-backend/internal/services"
	"github.com/Marshallmay28/zetumall-backend/utils"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	Orders   *services.OrderService
	Escrow   *services.EscrowService
	Payments *services.PaymentService
	// PingDB verifies ledger connectivity for the readiness probe.
	PingDB func(ctx context.Context) error

	log *utils.Logger
}

func New(orders *services.OrderService, escrow *services.EscrowService, payments *services.PaymentService, pingDB func(ctx context.Context) error) *Handler {
	return &Handler{
		Orders:   orders,
		Escrow:   escrow,
		Payments: payments,
		PingDB:   pingDB,
		log:      utils.DefaultLogger,
	}
}

// RegisterRoutes wires every endpoint. The payment callback is
// unauthenticated (the gateway calls it); the finance admin surface is
// loopback-only on top of role checks.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// Gateway-facing, no identity headers.
	r.POST("/api/payments/callback", h.PaymentCallback)

	api := r.Group("/api", middleware.Authenticate())
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListMyOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.PATCH("/orders/:id/status", h.UpdateOrderStatus)
		api.POST("/orders/:id/cancel", h.CancelOrder)
		api.POST("/orders/:id/escrow/release", h.ReleaseEscrowByCode)
		api.GET("/orders/:id/escrow", h.GetEscrowForOrder)
		api.GET("/stores/:id/orders", h.ListStoreOrders)

		api.POST("/payments/initiate", h.InitiatePayment)
		api.GET("/payments/:orderId/status", h.PaymentStatus)

		api.POST("/escrow/:id/dispute", h.DisputeEscrow)
	}

	admin := r.Group("/api/escrow",
		middleware.LocalOnly(),
		middleware.Authenticate(),
		middleware.RequireRoles(services.RoleFinanceAdmin, services.RoleSuperAdmin))
	{
		admin.GET("", h.ListEscrows)
		admin.GET("/:id", h.GetEscrow)
		admin.POST("/:id/release", h.ReleaseEscrow)
		admin.POST("/:id/refund", h.RefundEscrow)
	}
}

// respondErr maps service sentinels to HTTP statuses. Unknown errors
// are logged and hidden behind a 500.
func (h *Handler) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrDuplicateEscrow),
		errors.Is(err, services.ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrStoreNotOrderable),
		errors.Is(err, services.ErrInvalidReleaseCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": services.ErrGatewayUnavailable.Error()})
	default:
		h.log.Error("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
