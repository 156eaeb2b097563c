package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/services"
	"github.com/ridehub/ridehub/websocket"
	"go.uber.org/zap"
)

// Handler carries the dependencies of every REST and socket endpoint.
type Handler struct {
	auth         *services.AuthService
	chat         *services.ChatService
	hub          *websocket.Hub
	socketBuffer int
	log          *zap.Logger
}

func New(auth *services.AuthService, chat *services.ChatService, hub *websocket.Hub, socketBuffer int, log *zap.Logger) *Handler {
	return &Handler{
		auth:         auth,
		chat:         chat,
		hub:          hub,
		socketBuffer: socketBuffer,
		log:          log,
	}
}

// fail renders err with the status matching its sentinel.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrAuthentication):
		return fiber.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, errs.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, errs.ErrAlreadyExists):
		return fiber.StatusConflict, "Already exists"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

// socketCode maps err onto the error event code sent back over the socket.
func socketCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return websocket.CodeValidation
	case errors.Is(err, errs.ErrForbidden):
		return websocket.CodeForbidden
	case errors.Is(err, errs.ErrNotFound):
		return websocket.CodeNotFound
	default:
		return websocket.CodePersistence
	}
}
