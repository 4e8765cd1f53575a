package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memory-match/middleware"
	"memory-match/services"
)

// SetupAdminRoutes exposes the game configuration singleton to operators.
func SetupAdminRoutes(app *fiber.App, config *services.ConfigService) {
	admin := app.Group("/admin", middleware.RequireUser(), middleware.RequireRole("admin", "maintainer"))

	admin.Get("/config", func(c *fiber.Ctx) error {
		cfg, err := config.Current(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cfg)
	})

	admin.Put("/config", func(c *fiber.Ctx) error {
		var upd services.ConfigUpdate
		if err := c.BodyParser(&upd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		cfg, err := config.Update(c.UserContext(), upd)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cfg)
	})
}

// SetupSystemRoutes registers health and metrics endpoints.
func SetupSystemRoutes(app *fiber.App, registry *prometheus.Registry) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}
