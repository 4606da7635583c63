package httpapi

import (
	"context"
	"net/http"
	"time"

	"agromart-be/internal/middleware"
	"agromart-be/internal/order"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PaymentHandler struct {
	svc order.Service
}

func NewPaymentHandler(svc order.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type createIntentReq struct {
	OrderID string `json:"orderId" binding:"required,uuid"`
}

type callbackReq struct {
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
	OrderID          string `json:"orderId"`
}

func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req createIntentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	actor, _ := middleware.ActorFrom(c)
	orderID := uuid.MustParse(req.OrderID)

	// The gateway call itself carries a client timeout; this bounds the
	// whole unit of work.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	intent, err := h.svc.CreatePaymentIntent(ctx, orderID, actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// Callback is the gateway's webhook. It authenticates by signature, not
// bearer token, and is safe to retry: replays are acknowledged without
// being re-applied.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req callbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	err := h.svc.ConfirmPayment(c.Request.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	actor, _ := middleware.ActorFrom(c)

	if err := h.svc.CancelPayment(c.Request.Context(), orderID, actor.ID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
