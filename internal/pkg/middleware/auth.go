package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/security"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

// UserContextMiddleware resolves a bearer token into the request's user
// context. Missing or invalid tokens leave the request anonymous; protected
// routes reject it through RequireAuth.
func UserContextMiddleware(tokens *security.Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return c.Next()
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			return c.Next()
		}
		usercontext.Set(c, usercontext.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAuth rejects anonymous requests with a JSON 401.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return deny(c, apperrors.CodeUnauthorized, "authentication required")
	}
	return c.Next()
}

// RequireAdmin allows only the system-wide admin role.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return deny(c, apperrors.CodeUnauthorized, "authentication required")
	}
	if !usercontext.IsAdmin(c) {
		return deny(c, apperrors.CodeForbidden, "admin role required")
	}
	return c.Next()
}

func deny(c *fiber.Ctx, code, message string) error {
	return c.Status(apperrors.HTTPStatus(code)).JSON(fiber.Map{"error": code, "message": message})
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
