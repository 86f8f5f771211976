package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"tournament-ledger/services"
)

// SetupSystemRoutes registers the public routes: health, metrics and the
// payment gateway webhook. They must be registered before any secured group.
func SetupSystemRoutes(app *fiber.App, db *gorm.DB, gatherer prometheus.Gatherer, wallet *services.WalletService) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "database": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 💳 Gateway callback. The signature is the credential, so no user context.
	app.Post("/webhooks/payments", func(c *fiber.Ctx) error {
		var req services.TopupConfirmation
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
		res, err := wallet.ConfirmTopup(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return writeSuccess(c, fiber.StatusOK, "payment recorded", res)
	})
}
