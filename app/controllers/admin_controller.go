package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/directory"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

// AdminController serves the system administration endpoints. Every route
// is mounted behind middleware.RequireAdmin and the directory checks the
// role again.
type AdminController struct {
	dir *directory.Directory
}

func NewAdminController(dir *directory.Directory) *AdminController {
	return &AdminController{dir: dir}
}

func (a *AdminController) HandleCreateUser(c *fiber.Ctx) error {
	var in directory.CreateUserInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	created, err := a.dir.CreateUser(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (a *AdminController) HandleCreateOrganization(c *fiber.Ctx) error {
	var in directory.CreateOrganizationInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	org, err := a.dir.CreateOrganization(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"organization": org,
		"message":      "Organization created. Owner notified to complete subscription.",
	})
}

func (a *AdminController) HandleToggleOrganization(c *fiber.Ctx) error {
	var in directory.ToggleOrganizationInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	org, err := a.dir.ToggleOrganization(c.UserContext(), usercontext.Principal(c), c.Params("id"), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{
		"organization": org,
		"message":      directory.ToggleMessage(org.Enabled),
	})
}

func (a *AdminController) HandleListOrganizations(c *fiber.Ctx) error {
	orgs, err := a.dir.ListOrganizations(c.UserContext(), usercontext.Principal(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(orgs)
}

func (a *AdminController) HandleDeleteOrganization(c *fiber.Ctx) error {
	if err := a.dir.DeleteOrganization(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "")
}

func (a *AdminController) HandleOverview(c *fiber.Ctx) error {
	overview, err := a.dir.Overview(c.UserContext(), usercontext.Principal(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(overview)
}

func (a *AdminController) HandleCreateAPIKey(c *fiber.Ctx) error {
	var in directory.CreateAPIKeyInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	created, err := a.dir.CreateAPIKey(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (a *AdminController) HandleListAPIKeys(c *fiber.Ctx) error {
	keys, err := a.dir.ListAPIKeys(c.UserContext(), usercontext.Principal(c), c.Query("organizationId"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(keys)
}

func (a *AdminController) HandleRevokeAPIKey(c *fiber.Ctx) error {
	if err := a.dir.RevokeAPIKey(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "API key revoked")
}
