package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marshallmay28/zetumall-backend/internal/middleware"
	"github.com/Marshallmay28/zetumall-backend/internal/services"
)

// InitiatePayment triggers an STK push for the caller's order.
// POST /api/payments/initiate
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req struct {
		OrderID     string `json:"order_id" binding:"required"`
		PhoneNumber string `json:"phone_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	p, err := h.Payments.Initiate(c.Request.Context(), middleware.CurrentIdentity(c), req.OrderID, req.PhoneNumber)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"payment": p,
		"message": "payment prompt sent, confirm on your phone",
	})
}

// PaymentStatus returns the latest payment attempt for an order.
// GET /api/payments/:orderId/status
func (h *Handler) PaymentStatus(c *gin.Context) {
	p, err := h.Payments.StatusForOrder(c.Request.Context(), c.Param("orderId"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// callbackEnvelope is the gateway's wire shape for result notifications.
type callbackEnvelope struct {
	Body struct {
		StkCallback services.STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// PaymentCallback receives the gateway's asynchronous result. The
// gateway redelivers until it sees a success acknowledgement, so this
// endpoint always answers ResultCode 0; internal failures are logged
// and retried on the next delivery.
// POST /api/payments/callback
func (h *Handler) PaymentCallback(c *gin.Context) {
	ack := gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

	var env callbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.log.Warn("unparseable payment callback from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusOK, ack)
		return
	}

	if err := h.Payments.IngestCallback(c.Request.Context(), env.Body.StkCallback); err != nil {
		h.log.Error("payment callback ingestion failed for checkout %s: %v",
			env.Body.StkCallback.CheckoutRequestID, err)
	}
	c.JSON(http.StatusOK, ack)
}
