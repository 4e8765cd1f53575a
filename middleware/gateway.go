package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// GatewayAuthMiddleware validates the Bearer token the gateway attaches to
// every request it forwards.
func GatewayAuthMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		logrus.Fatal("❌ GAME_SERVICE_TOKEN is not set, service cannot authenticate the gateway")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			logrus.WithField("path", c.Path()).Warn("🚫 [GATEWAY_AUTH] missing Authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Accept "Bearer <token>" as well as the raw token.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logrus.WithField("path", c.Path()).Warn("❌ [GATEWAY_AUTH] invalid token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
