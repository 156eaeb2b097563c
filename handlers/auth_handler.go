package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/models"
	"github.com/ridehub/ridehub/services"
)

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handler) RegisterUser(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	user, err := h.auth.Register(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *Handler) LoginUser(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	token, user, err := h.auth.Login(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(LoginResponse{Token: token, User: *user})
}
