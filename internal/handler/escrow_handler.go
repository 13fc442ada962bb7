package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/middleware"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
	"github.com/Marshallmay28/zetumall-backend/internal/services"
)

// ReleaseEscrowByCode is the buyer's self-service payout: the order's
// escrow is released with the single-use code. A wrong code and an
// escrow that is no longer HELD answer with the same message, so the
// response never reveals which check failed.
// POST /api/orders/:id/escrow/release
func (h *Handler) ReleaseEscrowByCode(c *gin.Context) {
	var req struct {
		ReleaseCode string `json:"release_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	actor := middleware.CurrentIdentity(c)
	esc, err := h.Escrow.ByOrder(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	released, err := h.Escrow.ReleaseByCode(c.Request.Context(), esc.ID, req.ReleaseCode, actor)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReleaseCode) ||
			errors.Is(err, services.ErrInvalidTransition) ||
			errors.Is(err, services.ErrAlreadyReleased) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "release rejected"})
			return
		}
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"escrow":  released,
		"message": "funds released to seller",
	})
}

// GetEscrowForOrder shows an order's escrow to its parties.
// GET /api/orders/:id/escrow
func (h *Handler) GetEscrowForOrder(c *gin.Context) {
	esc, err := h.Escrow.ByOrder(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

// DisputeEscrow freezes a HELD escrow pending resolution.
// POST /api/escrow/:id/dispute
func (h *Handler) DisputeEscrow(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	esc, err := h.Escrow.Dispute(c.Request.Context(), c.Param("id"), req.Reason, middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

// ListEscrows is the finance admin view.
// GET /api/escrow
func (h *Handler) ListEscrows(c *gin.Context) {
	f := db.EscrowFilter{
		BuyerID:  c.Query("buyer_id"),
		SellerID: c.Query("seller_id"),
		Status:   models.EscrowStatus(c.Query("status")),
	}
	escrows, err := h.Escrow.List(c.Request.Context(), f, middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, escrows)
}

// GetEscrow returns one escrow transaction.
// GET /api/escrow/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	esc, err := h.Escrow.Get(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}

// ReleaseEscrow pays out to the seller on administrative authority.
// POST /api/escrow/:id/release
func (h *Handler) ReleaseEscrow(c *gin.Context) {
	esc, err := h.Escrow.Release(c.Request.Context(), c.Param("id"), middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"escrow":  esc,
		"message": "funds released to seller",
	})
}

// RefundEscrow returns held funds to the buyer.
// POST /api/escrow/:id/refund
func (h *Handler) RefundEscrow(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	esc, err := h.Escrow.Refund(c.Request.Context(), c.Param("id"), req.Reason, middleware.CurrentIdentity(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"escrow":  esc,
		"message": "funds refunded to buyer",
	})
}
