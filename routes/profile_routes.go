package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/handlers"
	"github.com/ridehub/ridehub/middleware"
)

func ProfileRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	profile := api.Group("/profile/me", middleware.Protected(secret))
	profile.Get("", h.GetProfile)
	profile.Put("", h.UpdateProfile)

	api.Get("/users", middleware.Protected(secret), h.ListUsers)
}
