package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// InternalTokenMiddleware guards internal endpoints with a shared bearer
// token. An empty token disables the endpoints entirely.
func InternalTokenMiddleware(token string) fiber.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			log.Warn().Str("path", c.Path()).Msg("internal API token not configured; rejecting request")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "internal_api_disabled", "message": "Internal API is not configured"})
		}

		provided := extractTokenFromHeader(c)
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API token"})
		}
		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API token"})
		}
		return c.Next()
	}
}

func extractTokenFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
