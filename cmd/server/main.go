package main

import (
	"context"
	"log"
	"time"

	"agromart-be/internal/cart"
	"agromart-be/internal/catalog"
	"agromart-be/internal/config"
	"agromart-be/internal/db"
	"agromart-be/internal/httpapi"
	"agromart-be/internal/inventory"
	"agromart-be/internal/logger"
	"agromart-be/internal/order"
	"agromart-be/internal/payment"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	catalogRepo := catalog.NewRepository(database)
	cartSvc := cart.NewService(catalogRepo)

	invRepo := inventory.NewRepository(database)
	orderRepo := order.NewRepository(database)
	gateway := payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)

	orderSvc := order.NewService(orderRepo, cartSvc, invRepo, gateway, order.Config{
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		FlatDeliveryFee:       cfg.FlatDeliveryFee,
		ReservationTTL:        cfg.ReservationTTL,
		WebhookSecret:         cfg.RazorpayWebhookSecret,
		Currency:              "INR",
	})

	go sweepOrphanedReservations(orderSvc, cfg.ReservationTTL)

	orderHandler := httpapi.NewOrderHandler(orderSvc)
	paymentHandler := httpapi.NewPaymentHandler(orderSvc)

	router := httpapi.NewRouter(orderHandler, paymentHandler, cfg.JWTSecret)

	log.Printf("order service running at http://localhost:%s/", cfg.AppPort)
	log.Fatal(router.Run(":" + cfg.AppPort))
}

// sweepOrphanedReservations periodically cancels online-payment orders
// whose payment window expired, releasing their stock holds.
func sweepOrphanedReservations(svc order.Service, ttl time.Duration) {
	interval := ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := svc.ReleaseOrphaned(ctx); err != nil {
			logger.L().Error("orphaned reservation sweep failed", zap.Error(err))
		}
		cancel()
	}
}
