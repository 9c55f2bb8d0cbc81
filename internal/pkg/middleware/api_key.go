package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

const HeaderAPIKey = "X-API-Key"

// APIKeyResolver maps a raw key to its active record.
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, raw string) (*models.APIKey, error)
}

// APIKeyAuthMiddleware authenticates requests carrying an organization API
// key header. The resulting identity is read-only and has no user.
func APIKeyAuthMiddleware(keys APIKeyResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(HeaderAPIKey))
		if raw == "" {
			return deny(c, apperrors.CodeUnauthorized, "missing API key")
		}

		key, err := keys.ResolveAPIKey(c.UserContext(), raw)
		if err != nil {
			code := apperrors.CodeOf(err)
			if code == apperrors.CodeInternal {
				log.Errorf("api key lookup failed: %v", err)
			}
			return deny(c, code, apperrors.PublicMessage(err))
		}

		usercontext.Set(c, usercontext.UserContext{
			OrganizationID: key.OrganizationID,
			IsAPIKey:       true,
		})
		return c.Next()
	}
}
