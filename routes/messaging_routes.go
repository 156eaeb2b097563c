package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/handlers"
	"github.com/ridehub/ridehub/middleware"
)

func MessagingRoutes(app *fiber.App, h *handlers.Handler, secret string) {
	api := app.Group("/api/v1")

	conversations := api.Group("/conversations", middleware.Protected(secret))
	conversations.Get("", h.GetUserConversations)
	conversations.Post("", h.CreateOrGetConversation)
	conversations.Get("/:conversationId/messages", h.GetConversationMessages)

	api.Post("/messages", middleware.Protected(secret), h.SendMessage)

	// the token is checked before the upgrade so a bad one gets a plain 401
	api.Get("/ws", middleware.ProtectedSocket(secret), websocket.New(h.ServeWs))
}
