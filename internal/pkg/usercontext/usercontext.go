package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

// UserContext represents the authenticated caller of a request. API key
// requests carry the key's organization instead of a user.
type UserContext struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
	IsLoggedIn     bool   `json:"is_logged_in"`
	IsAPIKey       bool   `json:"is_api_key"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// Set stores the context together with the legacy single-value locals.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyRole, uc.Role)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	uc := GetUserContext(c)
	return uc.IsLoggedIn && uc.Role == models.ROLE_ADMIN
}

// Principal converts the request identity for the tenant gate.
func Principal(c *fiber.Ctx) tenantgate.Principal {
	uc := GetUserContext(c)
	if !uc.IsLoggedIn {
		return tenantgate.Principal{}
	}
	return tenantgate.Principal{UserID: uc.UserID, Role: uc.Role}
}
