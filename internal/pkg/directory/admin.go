package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/slug"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

type CreateUserInput struct {
	Name  string `json:"name" validate:"required,min=2,max=150"`
	Email string `json:"email" validate:"required,email,max=200"`
	Role  string `json:"role" validate:"omitempty,oneof=ADMIN OWNER PROVIDER CLIENT"`
}

// CreatedUser carries the one-time temporary password back to the admin.
type CreatedUser struct {
	User         *models.User `json:"user"`
	TempPassword string       `json:"tempPassword"`
}

// CreateUser provisions an account with a temporary password the user must
// change on first login.
func (d *Directory) CreateUser(ctx context.Context, caller tenantgate.Principal, in CreateUserInput) (*CreatedUser, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	in.Email = models.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	email := in.Email
	if _, err := d.repos.User.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("user with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.FromStore(err, "")
	}

	random, err := slug.Random(10)
	if err != nil {
		return nil, apperrors.Internal("failed to generate password", err)
	}
	tempPassword := random + "Aa1!"

	u, err := models.NewUser(in.Name, email, tempPassword, in.Role)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	u.NeedsPasswordChange = true
	if err := d.repos.User.Create(ctx, u); err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	log.Infof("admin %s created user %s (%s)", caller.UserID, u.ID, u.Role)

	d.notifier.UserWelcome(u, tempPassword)
	d.stats.Invalidate(ctx)
	return &CreatedUser{User: u, TempPassword: tempPassword}, nil
}

type CreateOrganizationInput struct {
	Name    string `json:"name" validate:"required,min=2,max=150"`
	Slug    string `json:"slug" validate:"required,max=191"`
	OwnerID string `json:"ownerId" validate:"required"`
	Logo    string `json:"logo" validate:"omitempty,max=255"`
}

// CreateOrganization creates a disabled organization and makes the owner a
// member holding at least the OWNER role.
func (d *Directory) CreateOrganization(ctx context.Context, caller tenantgate.Principal, in CreateOrganizationInput) (*models.Organization, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	orgSlug := slug.Make(in.Slug)
	if orgSlug == "" {
		return nil, apperrors.Validation("slug is invalid")
	}

	exists, err := d.repos.Organization.SlugExists(ctx, orgSlug)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	if exists {
		return nil, apperrors.Conflict("organization with this slug already exists")
	}

	owner, err := d.repos.User.GetByID(ctx, in.OwnerID)
	if err != nil {
		return nil, apperrors.FromStore(err, "owner user not found")
	}

	org := &models.Organization{
		Name:    strings.TrimSpace(in.Name),
		Slug:    orgSlug,
		Logo:    strings.TrimSpace(in.Logo),
		Enabled: false,
	}
	if err := d.repos.Organization.CreateWithOwner(ctx, org, owner, owner.PromotionFor(models.ROLE_OWNER)); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("organization with this slug already exists")
		}
		return nil, apperrors.FromStore(err, "")
	}
	log.Infof("organization %s (%s) created for owner %s", org.ID, org.Slug, owner.ID)

	d.notifier.OrganizationCreated(org, owner)
	d.organizationsChanged(ctx)
	return org, nil
}

type ToggleOrganizationInput struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ToggleOrganization sets the enabled flag by hand, overriding the
// subscription state until the next webhook.
func (d *Directory) ToggleOrganization(ctx context.Context, caller tenantgate.Principal, id string, in ToggleOrganizationInput) (*models.Organization, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if in.Enabled == nil {
		return nil, apperrors.Validation("enabled field must be a boolean")
	}
	if err := d.repos.Organization.SetEnabled(ctx, id, *in.Enabled); err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}
	org, err := d.repos.Organization.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}

	d.notifier.OrganizationToggled(org)
	d.organizationsChanged(ctx)
	return org, nil
}

// ToggleMessage is the confirmation shown after a toggle.
func ToggleMessage(enabled bool) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return fmt.Sprintf("Organization %s successfully", state)
}

func (d *Directory) ListOrganizations(ctx context.Context, caller tenantgate.Principal) ([]models.Organization, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	orgs, err := d.repos.Organization.List(ctx)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	return orgs, nil
}

// DeleteOrganization removes the organization and everything it owns.
func (d *Directory) DeleteOrganization(ctx context.Context, caller tenantgate.Principal, id string) error {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return err
	}
	if err := d.repos.Organization.Delete(ctx, id); err != nil {
		return apperrors.FromStore(err, "organization not found")
	}
	log.Infof("admin %s deleted organization %s", caller.UserID, id)
	d.organizationsChanged(ctx)
	return nil
}

type AdminOverview struct {
	Organizations []models.Organization `json:"organizations"`
	Stats         *repository.Overview  `json:"stats"`
	DailyBookings []models.DailyStats   `json:"dailyBookings"`
}

const overviewDays = 7

func (d *Directory) Overview(ctx context.Context, caller tenantgate.Principal) (*AdminOverview, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	stats, err := d.stats.Overview(ctx)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	orgs, err := d.repos.Organization.List(ctx)
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	end := d.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	daily, err := d.repos.Stats.DailyBookings(ctx, end.AddDate(0, 0, -overviewDays), end)
	if err != nil {
		return nil, apperrors.Internal("failed to load booking stats", err)
	}
	return &AdminOverview{Organizations: orgs, Stats: stats, DailyBookings: daily}, nil
}
