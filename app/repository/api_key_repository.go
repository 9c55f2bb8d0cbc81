package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
)

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(ctx context.Context, k *models.APIKey) error {
	return r.db.WithContext(ctx).Create(k).Error
}

// GetByHash resolves a non-revoked key hash. Expiry is checked by the caller.
func (r *apiKeyRepository) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var k models.APIKey
	err := r.db.WithContext(ctx).
		Where("key_hash = ? AND revoked_at IS NULL", trimmed).
		First(&k).Error
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	if err := r.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// List returns keys newest first, across all organizations when orgID is
// empty.
func (r *apiKeyRepository) List(ctx context.Context, orgID string) ([]models.APIKey, error) {
	q := r.db.WithContext(ctx)
	if orgID != "" {
		q = q.Where("organization_id = ?", orgID)
	}
	var keys []models.APIKey
	err := q.Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (r *apiKeyRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at.UTC()).Error
}
