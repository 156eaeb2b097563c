package middleware

import (
	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/ridehub/ridehub/utils"
)

// ContextKey is where the jwt middleware stores the parsed token.
const ContextKey = "user"

// Protected guards REST routes with a bearer token.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ContextKey:   ContextKey,
		ErrorHandler: jwtError,
	})
}

// ProtectedSocket authenticates the websocket handshake before the upgrade.
// Browsers cannot set headers on a websocket, so the token may also come
// from the token query parameter.
func ProtectedSocket(secret string) fiber.Handler {
	verify := jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ContextKey:   ContextKey,
		TokenLookup:  "query:token,header:Authorization",
		ErrorHandler: jwtError,
	})
	return func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return verify(c)
	}
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// CurrentUserID returns the user id of the request's validated token.
func CurrentUserID(c *fiber.Ctx) (string, error) {
	token, _ := c.Locals(ContextKey).(*jwt.Token)
	return utils.UserIDFromToken(token)
}
