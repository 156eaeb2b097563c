package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/middleware"
	"github.com/ridehub/ridehub/services"
)

func (h *Handler) GetProfile(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	user, err := h.auth.Profile(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req services.ProfileInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	user, err := h.auth.UpdateProfile(c.UserContext(), userID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// ListUsers is the directory of everyone except the caller.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	users, err := h.auth.Directory(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(users)
}
