package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

type AssignProviderInput struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	DepartmentID   string `json:"departmentId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	Bio            string `json:"bio" validate:"max=2000"`
	Specialization string `json:"specialization" validate:"max=150"`
}

// AssignProvider turns an existing user into a provider of one department.
// The user becomes a member of the organization and is promoted to
// PROVIDER unless they already hold a higher role.
func (d *Directory) AssignProvider(ctx context.Context, caller tenantgate.Principal, in AssignProviderInput) (*models.Provider, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := d.gate.RequireOwnerOfEnabledOrganization(ctx, caller, in.OrganizationID); err != nil {
		return nil, err
	}

	dept, err := d.repos.Department.GetByID(ctx, in.DepartmentID)
	if err != nil {
		return nil, apperrors.FromStore(err, "department not found")
	}
	if dept.OrganizationID != in.OrganizationID {
		return nil, apperrors.Validation("department does not belong to this organization")
	}

	u, err := d.repos.User.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, apperrors.FromStore(err, "user not found")
	}
	if _, err := d.repos.Provider.GetByUserID(ctx, u.ID); err == nil {
		return nil, apperrors.Conflict("user is already a provider")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.FromStore(err, "")
	}

	if _, err := d.repos.Organization.EnsureMember(ctx, &models.Member{
		OrganizationID: in.OrganizationID,
		UserID:         u.ID,
		Email:          u.Email,
	}); err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	if role := u.PromotionFor(models.ROLE_PROVIDER); role != u.Role {
		if err := d.repos.User.UpdateRole(ctx, u.ID, role); err != nil {
			return nil, apperrors.FromStore(err, "")
		}
	}

	p := &models.Provider{
		UserID:         u.ID,
		DepartmentID:   dept.ID,
		Bio:            strings.TrimSpace(in.Bio),
		Specialization: strings.TrimSpace(in.Specialization),
	}
	if err := d.repos.Provider.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("user is already a provider")
		}
		return nil, apperrors.FromStore(err, "")
	}
	log.Infof("user %s assigned as provider in department %s", u.ID, dept.ID)
	d.stats.Invalidate(ctx)

	created, err := d.repos.Provider.GetByID(ctx, p.ID)
	if err != nil {
		return nil, apperrors.FromStore(err, "provider not found")
	}
	return created, nil
}

// ListProviders lists the providers of an organization, optionally of one
// department only.
func (d *Directory) ListProviders(ctx context.Context, caller tenantgate.Principal, orgID, departmentID string) ([]models.Provider, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.Validation("organizationId is required")
	}
	providers, err := d.repos.Provider.List(ctx, orgID, departmentID)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	return providers, nil
}

// GetProvider returns the provider with its events starting from now on.
func (d *Directory) GetProvider(ctx context.Context, caller tenantgate.Principal, id string) (*models.Provider, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	p, err := d.repos.Provider.GetWithUpcomingEvents(ctx, id, d.now())
	if err != nil {
		return nil, apperrors.FromStore(err, "provider not found")
	}
	return p, nil
}

func (d *Directory) DeleteProvider(ctx context.Context, caller tenantgate.Principal, id string) error {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return err
	}
	p, err := d.repos.Provider.GetByID(ctx, id)
	if err != nil {
		return apperrors.FromStore(err, "provider not found")
	}
	if p.Department == nil {
		return apperrors.NotFound("department not found")
	}
	if err := d.gate.RequireRole(ctx, caller, p.Department.OrganizationID, models.ROLE_OWNER); err != nil {
		return err
	}
	if err := d.repos.Provider.Delete(ctx, id); err != nil {
		return apperrors.FromStore(err, "provider not found")
	}
	d.stats.Invalidate(ctx)
	return nil
}
