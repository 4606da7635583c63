package httpapi

import (
	"errors"
	"net/http"

	"agromart-be/internal/cart"
	"agromart-be/internal/inventory"
	"agromart-be/internal/logger"
	"agromart-be/internal/order"
	"agromart-be/internal/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps domain errors onto HTTP responses. Validation
// failures keep their per-item / per-field detail so the client can
// show every problem at once.
func writeError(c *gin.Context, err error) {
	var cartErr *cart.ValidationError
	if errors.As(err, &cartErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "cart_validation_failed",
			"items": cartErr.Problems,
		})
		return
	}

	var valErr *order.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": valErr.Fields,
		})
		return
	}

	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient_stock",
			"productId": stockErr.ProductID,
		})
		return
	}

	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock"})
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, order.ErrVendorNotInOrder):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, order.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, order.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "not_cancellable"})
	case errors.Is(err, order.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition"})
	case errors.Is(err, order.ErrPaymentNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "payment_not_pending"})
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
	default:
		logger.FromCtx(c.Request.Context()).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
