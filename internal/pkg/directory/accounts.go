package directory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

// Authenticate checks local credentials. Unknown emails and wrong passwords
// fail the same way.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := d.repos.User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, apperrors.FromStore(err, "")
	}
	if !u.CheckPassword(password) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	return u, nil
}

type PasswordStatus struct {
	NeedsPasswordChange bool         `json:"needsPasswordChange"`
	User                *models.User `json:"user"`
}

func (d *Directory) PasswordStatus(ctx context.Context, caller tenantgate.Principal) (*PasswordStatus, error) {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	u, err := d.repos.User.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, apperrors.FromStore(err, "user not found")
	}
	return &PasswordStatus{NeedsPasswordChange: u.NeedsPasswordChange, User: u}, nil
}

type UpdatePasswordInput struct {
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

// UpdatePassword replaces the caller's password and clears the forced
// change flag.
func (d *Directory) UpdatePassword(ctx context.Context, caller tenantgate.Principal, in UpdatePasswordInput) error {
	if err := d.gate.RequireAuthenticated(caller); err != nil {
		return err
	}
	if len(in.NewPassword) < models.MinPasswordLength {
		return apperrors.Validation("new password must be at least 8 characters")
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	if _, err := d.repos.User.GetByID(ctx, caller.UserID); err != nil {
		return apperrors.FromStore(err, "user not found")
	}
	hash, err := models.HashPassword(in.NewPassword)
	if err != nil {
		return apperrors.Internal("failed to hash password", err)
	}
	if err := d.repos.User.UpdatePassword(ctx, caller.UserID, hash, false); err != nil {
		return apperrors.FromStore(err, "user not found")
	}
	return nil
}
