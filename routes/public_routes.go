package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/handlers"
	"github.com/ridehub/ridehub/middleware"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to RideHub API",
		})
	})
	app.Get("/health", h.Health)
}

func MonitorRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	api.Get("/presence", middleware.Protected(secret), h.GetPresence)
	api.Get("/monitor/stats", middleware.Protected(secret), h.GetHubStats)
}
