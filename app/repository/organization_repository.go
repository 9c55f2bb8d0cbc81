package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medisched/medisched/app/models"
)

type organizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *organizationRepository) CreateWithOwner(ctx context.Context, org *models.Organization, owner *models.User, ownerRole string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		member := &models.Member{OrganizationID: org.ID, UserID: owner.ID, Email: owner.Email}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error; err != nil {
			return err
		}
		if owner.Role != ownerRole {
			if err := tx.Model(&models.User{}).Where("id = ?", owner.ID).Update("role", ownerRole).Error; err != nil {
				return err
			}
			owner.Role = ownerRole
		}
		return nil
	})
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Organization{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *organizationRepository) List(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.WithContext(ctx).Order("name ASC").Find(&orgs).Error
	return orgs, err
}

func (r *organizationRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// The row may exist with the same value on drivers that report
		// changed rows only.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

func (r *organizationRepository) SaveMetadata(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", org.ID).
		Update("metadata", org.Metadata).Error
}

// Delete removes the organization together with its departments, providers,
// events, bookings, memberships and API keys.
func (r *organizationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deptIDs := tx.Model(&models.Department{}).Select("id").Where("organization_id = ?", id)
		var providerIDs []string
		if err := tx.Model(&models.Provider{}).Where("department_id IN (?)", deptIDs).Pluck("id", &providerIDs).Error; err != nil {
			return err
		}
		if err := deleteProviders(tx, providerIDs); err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.Department{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.Member{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Organization{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *organizationRepository) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *organizationRepository) EnsureMember(ctx context.Context, member *models.Member) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "user_id"},
		},
		DoNothing: true,
	}).Create(member)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *organizationRepository) ListOrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.Member{}).Select("organization_id").Where("user_id = ?", userID)).
		Order("name ASC").
		Find(&orgs).Error
	return orgs, err
}

// deleteProviders removes the given providers and everything hanging off
// them. It must run inside a transaction.
func deleteProviders(tx *gorm.DB, providerIDs []string) error {
	if len(providerIDs) == 0 {
		return nil
	}
	eventIDs := tx.Model(&models.Event{}).Select("id").Where("provider_id IN ?", providerIDs)
	if err := tx.Where("event_id IN (?)", eventIDs).Delete(&models.Booking{}).Error; err != nil {
		return err
	}
	if err := tx.Where("provider_id IN ?", providerIDs).Delete(&models.Event{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", providerIDs).Delete(&models.Provider{}).Error
}
