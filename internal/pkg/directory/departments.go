package directory

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

type CreateDepartmentInput struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	Name           string `json:"name" validate:"required,max=150"`
}

// CreateDepartment checks ownership before enablement, so a non-owner
// learns nothing about the organization's subscription.
func (d *Directory) CreateDepartment(ctx context.Context, caller tenantgate.Principal, in CreateDepartmentInput) (*models.Department, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := d.gate.RequireOwnerOfEnabledOrganization(ctx, caller, in.OrganizationID); err != nil {
		return nil, err
	}

	dept := &models.Department{OrganizationID: in.OrganizationID, Name: strings.TrimSpace(in.Name)}
	if err := d.repos.Department.Create(ctx, dept); err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	d.stats.Invalidate(ctx)
	return dept, nil
}

func (d *Directory) ListDepartments(ctx context.Context, caller tenantgate.Principal, orgID string) ([]models.Department, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.Validation("organizationId is required")
	}
	depts, err := d.repos.Department.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	return depts, nil
}

// DeleteDepartment removes the department with its providers, their events
// and the bookings on them.
func (d *Directory) DeleteDepartment(ctx context.Context, caller tenantgate.Principal, id string) error {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return err
	}
	dept, err := d.repos.Department.GetByID(ctx, id)
	if err != nil {
		return apperrors.FromStore(err, "department not found")
	}
	if err := d.gate.RequireRole(ctx, caller, dept.OrganizationID, models.ROLE_OWNER); err != nil {
		return err
	}
	if err := d.repos.Department.Delete(ctx, id); err != nil {
		return apperrors.FromStore(err, "department not found")
	}
	log.Infof("department %s deleted by %s", id, caller.UserID)
	d.stats.Invalidate(ctx)
	return nil
}
