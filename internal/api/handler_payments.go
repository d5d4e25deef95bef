package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"clubpoint-backend/internal/model"
)

// ListPayments handles GET /api/payments. Customers see their own payments,
// staff see everything.
func (h *Handler) ListPayments(c *gin.Context) {
	user := currentUser(c)
	scope := user.ID
	if user.Role.IsStaff() {
		scope = 0
	}

	payments, err := h.payments.List(c.Request.Context(), scope)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve payments"})
		return
	}

	h.record(c, "LIST_PAYMENTS", "payment", nil, fmt.Sprintf("count=%d", len(payments)))
	c.JSON(http.StatusOK, payments)
}

type cashPaymentRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Hours  int    `json:"hours" binding:"required,min=1"`
	Note   string `json:"note"`
}

// CreateCashPayment handles POST /api/payments/cash (staff only).
func (h *Handler) CreateCashPayment(c *gin.Context) {
	var req cashPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.payments.CreateCash(c.Request.Context(), req.UserID, req.Hours, req.Note)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "CREATE_CASH_PAYMENT", "payment", &p.ID,
		fmt.Sprintf("user_id=%d hours=%d amount=%s", req.UserID, req.Hours, p.Amount))
	c.JSON(http.StatusCreated, p)
}

type onlinePaymentRequest struct {
	Hours int `json:"hours" binding:"required,min=1"`
}

// CreateOnlinePayment handles POST /api/payments/online.
func (h *Handler) CreateOnlinePayment(c *gin.Context) {
	var req onlinePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	p, checkoutURL, err := h.payments.CreateOnline(c.Request.Context(), user.ID, req.Hours)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "CREATE_ONLINE_PAYMENT", "payment", &p.ID,
		fmt.Sprintf("hours=%d amount=%s", req.Hours, p.Amount))
	c.JSON(http.StatusCreated, gin.H{"payment_id": p.ID, "payment_url": checkoutURL})
}

type webhookRequest struct {
	PaymentID         int64               `json:"payment_id" binding:"required"`
	Status            model.PaymentStatus `json:"status" binding:"required"`
	ProviderPaymentID string              `json:"provider_payment_id"`
}

// PaymentWebhook handles POST /api/payments/webhook. Unauthenticated: the
// provider calls it, delivery is at-least-once, and reconciliation is
// idempotent underneath.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.payments.ApplyWebhook(c.Request.Context(), req.PaymentID, req.Status, req.ProviderPaymentID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
