package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// CallbackToken guards endpoints the order source calls. An empty token
// disables the check.
func CallbackToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(c.Get("X-Callback-Token")), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid callback token"})
		}
		return c.Next()
	}
}
