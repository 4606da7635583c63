package httpapi

import (
	"context"
	"net/http"
	"time"

	"agromart-be/internal/cart"
	"agromart-be/internal/middleware"
	"agromart-be/internal/order"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type checkoutItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type addressReq struct {
	FullName string `json:"fullName" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Address  string `json:"address" binding:"required"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state" binding:"required"`
	Pincode  string `json:"pincode" binding:"required"`
}

type createOrderReq struct {
	Items           []checkoutItemReq `json:"items" binding:"required,min=1,dive"`
	DeliveryAddress addressReq        `json:"deliveryAddress" binding:"required"`
	PaymentMethod   string            `json:"paymentMethod" binding:"required,oneof=cod online"`
	Notes           string            `json:"notes"`
}

type statusUpdateReq struct {
	Status         string  `json:"status" binding:"required"`
	Reason         string  `json:"reason"`
	TrackingNumber *string `json:"trackingNumber"`
	TrackingURL    *string `json:"trackingUrl"`
}

type cancelReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items := make([]cart.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, cart.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	o, err := h.svc.Checkout(ctx, actor.ID, order.CheckoutInput{
		Items: items,
		DeliveryAddress: order.DeliveryAddress{
			FullName: req.DeliveryAddress.FullName,
			Phone:    req.DeliveryAddress.Phone,
			Address:  req.DeliveryAddress.Address,
			City:     req.DeliveryAddress.City,
			State:    req.DeliveryAddress.State,
			Pincode:  req.DeliveryAddress.Pincode,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	actor, _ := middleware.ActorFrom(c)

	o, err := h.svc.GetOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	orders, err := h.svc.ListByBuyer(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req statusUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	actor, _ := middleware.ActorFrom(c)

	o, err := h.svc.UpdateStatus(c.Request.Context(), orderID, actor, order.StatusUpdateInput{
		Status:         order.Status(req.Status),
		Reason:         req.Reason,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) UpdateSubOrderStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	vendorID := c.Param("vendorId")

	var req statusUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	actor, _ := middleware.ActorFrom(c)

	o, err := h.svc.UpdateSubOrderStatus(c.Request.Context(), orderID, vendorID, actor, order.SubStatusUpdateInput{
		Status:         order.SubStatus(req.Status),
		Reason:         req.Reason,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	actor, _ := middleware.ActorFrom(c)

	o, err := h.svc.Cancel(c.Request.Context(), orderID, req.Reason, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, o)
}
