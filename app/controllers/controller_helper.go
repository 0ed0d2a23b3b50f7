package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// errorResponse writes the JSON error body shared by all API handlers.
func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(c *fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
