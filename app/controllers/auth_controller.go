package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/directory"
	"github.com/medisched/medisched/internal/pkg/security"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

type AuthController struct {
	dir    *directory.Directory
	tokens *security.Tokens
}

func NewAuthController(dir *directory.Directory, tokens *security.Tokens) *AuthController {
	return &AuthController{dir: dir, tokens: tokens}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for a bearer token.
func (a *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return renderError(c, err)
	}
	if req.Email == "" || req.Password == "" {
		return renderError(c, apperrors.Validation("email and password are required"))
	}

	u, err := a.dir.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return renderError(c, err)
	}
	token, expiresAt, err := a.tokens.Issue(u.ID, u.Role, u.Email)
	if err != nil {
		return renderError(c, apperrors.Internal("failed to issue token", err))
	}
	log.Infof("user %s logged in", u.ID)

	return c.JSON(fiber.Map{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      u,
	})
}

func (a *AuthController) HandleCheckPasswordChange(c *fiber.Ctx) error {
	status, err := a.dir.PasswordStatus(c.UserContext(), usercontext.Principal(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(status)
}

func (a *AuthController) HandleUpdatePassword(c *fiber.Ctx) error {
	var in directory.UpdatePasswordInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	if err := a.dir.UpdatePassword(c.UserContext(), usercontext.Principal(c), in); err != nil {
		return renderError(c, err)
	}
	return success(c, "Password updated successfully")
}
