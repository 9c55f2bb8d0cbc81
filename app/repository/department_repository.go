package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
)

type departmentRepository struct {
	db *gorm.DB
}

func NewDepartmentRepository(db *gorm.DB) DepartmentRepository {
	return &departmentRepository{db: db}
}

func (r *departmentRepository) Create(ctx context.Context, dept *models.Department) error {
	return r.db.WithContext(ctx).Create(dept).Error
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*models.Department, error) {
	var dept models.Department
	if err := r.db.WithContext(ctx).First(&dept, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

// ListByOrganization returns departments ordered by name with their
// providers and provider users preloaded.
func (r *departmentRepository) ListByOrganization(ctx context.Context, orgID string) ([]models.Department, error) {
	var depts []models.Department
	err := r.db.WithContext(ctx).
		Preload("Providers").
		Preload("Providers.User").
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&depts).Error
	return depts, err
}

func (r *departmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var providerIDs []string
		if err := tx.Model(&models.Provider{}).Where("department_id = ?", id).Pluck("id", &providerIDs).Error; err != nil {
			return err
		}
		if err := deleteProviders(tx, providerIDs); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Department{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

type providerRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) Create(ctx context.Context, p *models.Provider) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *providerRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	if err := r.db.WithContext(ctx).Preload("Department").Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepository) GetByUserID(ctx context.Context, userID string) (*models.Provider, error) {
	var p models.Provider
	if err := r.db.WithContext(ctx).Preload("Department").Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns providers of an organization, optionally narrowed to one
// department.
func (r *providerRepository) List(ctx context.Context, orgID, departmentID string) ([]models.Provider, error) {
	q := r.db.WithContext(ctx).Preload("User").Preload("Department")
	if departmentID != "" {
		q = q.Where("department_id = ?", departmentID)
	}
	if orgID != "" {
		q = q.Where("department_id IN (?)", r.db.Model(&models.Department{}).Select("id").Where("organization_id = ?", orgID))
	}
	var providers []models.Provider
	err := q.Order("created_at ASC").Find(&providers).Error
	return providers, err
}

func (r *providerRepository) GetWithUpcomingEvents(ctx context.Context, id string, now time.Time) (*models.Provider, error) {
	var p models.Provider
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Department").
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Where("starts_at >= ?", now.UTC()).Order("starts_at ASC")
		}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Provider{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return gorm.ErrRecordNotFound
		}
		return deleteProviders(tx, []string{id})
	})
}
