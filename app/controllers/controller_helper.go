package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/internal/pkg/apperrors"
)

// renderError writes the error envelope {"error": code, "message": msg}.
// Internal causes are logged, never sent.
func renderError(c *fiber.Ctx, err error) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternal {
		log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(apperrors.HTTPStatus(code)).JSON(fiber.Map{
		"error":   code,
		"message": apperrors.PublicMessage(err),
	})
}

func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return nil
}

func success(c *fiber.Ctx, message string) error {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	return c.JSON(body)
}

func queryBool(c *fiber.Ctx, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
