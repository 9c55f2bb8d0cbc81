package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/directory"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

// OrganizationController serves the tenant directory below the admin
// surface: organizations, departments and providers.
type OrganizationController struct {
	dir *directory.Directory
}

func NewOrganizationController(dir *directory.Directory) *OrganizationController {
	return &OrganizationController{dir: dir}
}

// HandlePublicOrganizations lists organizations for signup without
// authentication.
func (o *OrganizationController) HandlePublicOrganizations(c *fiber.Ctx) error {
	orgs, err := o.dir.PublicOrganizations(c.UserContext())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(orgs)
}

func (o *OrganizationController) HandleCreateDepartment(c *fiber.Ctx) error {
	var in directory.CreateDepartmentInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	dept, err := o.dir.CreateDepartment(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dept)
}

func (o *OrganizationController) HandleListDepartments(c *fiber.Ctx) error {
	depts, err := o.dir.ListDepartments(c.UserContext(), usercontext.Principal(c), c.Query("organizationId"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(depts)
}

func (o *OrganizationController) HandleDeleteDepartment(c *fiber.Ctx) error {
	if err := o.dir.DeleteDepartment(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "")
}

func (o *OrganizationController) HandleAssignProvider(c *fiber.Ctx) error {
	var in directory.AssignProviderInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	p, err := o.dir.AssignProvider(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (o *OrganizationController) HandleListProviders(c *fiber.Ctx) error {
	providers, err := o.dir.ListProviders(c.UserContext(), usercontext.Principal(c), c.Query("organizationId"), c.Query("departmentId"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(providers)
}

func (o *OrganizationController) HandleGetProvider(c *fiber.Ctx) error {
	p, err := o.dir.GetProvider(c.UserContext(), usercontext.Principal(c), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(p)
}

func (o *OrganizationController) HandleDeleteProvider(c *fiber.Ctx) error {
	if err := o.dir.DeleteProvider(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "")
}
