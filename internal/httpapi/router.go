package httpapi

import (
	"net/http"

	"agromart-be/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(orderH *OrderHandler, paymentH *PaymentHandler, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RateLimit())

	// The gateway signs its callbacks; no bearer token here.
	api.POST("/payments/callback", paymentH.Callback)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(jwtSecret))
	{
		authed.POST("/orders", orderH.CreateOrder)
		authed.GET("/orders", orderH.ListOrders)
		authed.GET("/orders/:id", orderH.GetOrder)
		authed.PATCH("/orders/:id/status", orderH.UpdateStatus)
		authed.PATCH("/orders/:id/suborders/:vendorId/status", orderH.UpdateSubOrderStatus)
		authed.POST("/orders/:id/cancel", orderH.Cancel)

		authed.POST("/payments/intent", paymentH.CreateIntent)
		authed.POST("/payments/:orderId/cancel", paymentH.CancelPayment)
	}

	return r
}
