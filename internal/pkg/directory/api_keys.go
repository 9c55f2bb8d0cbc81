package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

type CreateAPIKeyInput struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	Name           string `json:"name" validate:"required,max=100"`
	ExpiresInDays  int    `json:"expiresInDays" validate:"omitempty,min=1,max=3650"`
}

// CreatedAPIKey holds the raw key. It is shown once and never stored.
type CreatedAPIKey struct {
	APIKey *models.APIKey `json:"apiKey"`
	Key    string         `json:"key"`
}

func (d *Directory) CreateAPIKey(ctx context.Context, caller tenantgate.Principal, in CreateAPIKeyInput) (*CreatedAPIKey, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := d.repos.Organization.GetByID(ctx, in.OrganizationID); err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}

	ttl := time.Duration(in.ExpiresInDays) * 24 * time.Hour
	key, raw, err := models.NewAPIKey(in.OrganizationID, in.Name, caller.UserID, ttl, d.now())
	if err != nil {
		return nil, apperrors.Internal("failed to generate api key", err)
	}
	if err := d.repos.APIKey.Create(ctx, key); err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	log.Infof("api key %s created for organization %s", key.Prefix, key.OrganizationID)
	return &CreatedAPIKey{APIKey: key, Key: raw}, nil
}

func (d *Directory) ListAPIKeys(ctx context.Context, caller tenantgate.Principal, orgID string) ([]models.APIKey, error) {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return nil, err
	}
	keys, err := d.repos.APIKey.List(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return nil, apperrors.FromStore(err, "")
	}
	return keys, nil
}

func (d *Directory) RevokeAPIKey(ctx context.Context, caller tenantgate.Principal, id string) error {
	if err := d.gate.RequireAdmin(caller); err != nil {
		return err
	}
	if err := d.repos.APIKey.Revoke(ctx, id, d.now()); err != nil {
		return apperrors.FromStore(err, "api key not found")
	}
	return nil
}

// ResolveAPIKey maps a raw key to its active record and refreshes the
// last-used timestamp.
func (d *Directory) ResolveAPIKey(ctx context.Context, raw string) (*models.APIKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.Unauthorized("missing API key")
	}
	key, err := d.repos.APIKey.GetByHash(ctx, models.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("invalid API key")
		}
		return nil, apperrors.FromStore(err, "")
	}
	now := d.now()
	if !key.IsActive(now) {
		return nil, apperrors.Unauthorized("API key is revoked or expired")
	}
	if err := d.repos.APIKey.TouchLastUsed(ctx, key.ID, now); err != nil {
		log.Warnf("failed to update api key usage timestamp for %s: %v", key.ID, err)
	}
	return key, nil
}
