package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/security"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

func newApp(t *testing.T) (*fiber.App, *security.Tokens) {
	tokens, err := security.NewTokens("test-secret", time.Hour, nil)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(UserContextMiddleware(tokens))
	echo := func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	}
	app.Get("/open", echo)
	app.Get("/private", RequireAuth, echo)
	app.Get("/admin", RequireAdmin, echo)
	return app, tokens
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestBearerAuthentication(t *testing.T) {
	app, tokens := newApp(t)
	owner, _, err := tokens.Issue("u1", models.ROLE_OWNER, "o@example.com")
	require.NoError(t, err)
	admin, _, err := tokens.Issue("u2", models.ROLE_ADMIN, "a@example.com")
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/open", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/private", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/private", "garbage"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/private", owner))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", owner))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", admin))
}

type fakeKeys map[string]*models.APIKey

func (f fakeKeys) ResolveAPIKey(_ context.Context, raw string) (*models.APIKey, error) {
	if k, ok := f[raw]; ok {
		return k, nil
	}
	return nil, apperrors.Unauthorized("invalid API key")
}

func TestAPIKeyAuthentication(t *testing.T) {
	app := fiber.New()
	app.Get("/v1", APIKeyAuthMiddleware(fakeKeys{"good": {OrganizationID: "org-1"}}), func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		assert.True(t, uc.IsAPIKey)
		assert.False(t, uc.IsLoggedIn)
		return c.SendString(uc.OrganizationID)
	})

	for key, want := range map[string]int{"": fiber.StatusUnauthorized, "bad": fiber.StatusUnauthorized, "good": fiber.StatusOK} {
		req := httptest.NewRequest(fiber.MethodGet, "/v1", nil)
		if key != "" {
			req.Header.Set(HeaderAPIKey, key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, key)
	}
}
