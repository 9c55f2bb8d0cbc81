package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func HandleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Medisched API", "docs": "/docs/api/v1"})
}

// HandleHealth reports liveness only; it does not touch the database.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
