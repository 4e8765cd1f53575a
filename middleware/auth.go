package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	LocalUserID    = "user_id"
	LocalUserName  = "user_name"
	LocalUserRoles = "user_roles"
	LocalRequestID = "request_id"
)

// UserContextMiddleware extracts the identity and roles set by the gateway
// and tags the request with an id. Identity is optional here; routes that
// need it add RequireUser.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var roles []string
		// Header values alias the request buffer; Locals outlive it.
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, utils.CopyString(r))
			}
		}

		requestID := utils.CopyString(c.Get(fiber.HeaderXRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, requestID)

		c.Locals(LocalUserID, utils.CopyString(strings.TrimSpace(c.Get("X-User-ID"))))
		c.Locals(LocalUserName, utils.CopyString(strings.TrimSpace(c.Get("X-User-Name"))))
		c.Locals(LocalUserRoles, roles)
		c.Locals(LocalRequestID, requestID)
		return c.Next()
	}
}

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": RequestID(c),
			"user_id":    UserID(c),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("request")
		return err
	}
}

// RequireUser rejects requests the gateway did not attach a user to.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			logrus.WithField("path", c.Path()).Warn("❌ [USER_CTX] X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}
		return c.Next()
	}
}

// RequireRole lets the request through if the user has any of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, have := range UserRoles(c) {
			for _, want := range roles {
				if strings.EqualFold(have, want) {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// UserName falls back to the user id when the gateway sent no display name.
func UserName(c *fiber.Ctx) string {
	if name, _ := c.Locals(LocalUserName).(string); name != "" {
		return name
	}
	return UserID(c)
}

func UserRoles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(LocalUserRoles).([]string)
	return roles
}

func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalRequestID).(string)
	return id
}
