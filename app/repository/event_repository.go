package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medisched/medisched/app/models"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, e *models.Event) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(e).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := r.db.WithContext(ctx).
		Preload("Provider").
		Preload("Provider.Department").
		Preload("Booking").
		First(&e, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateIfAvailable guards the write with is_booked = false so an update
// racing a booking cannot modify a booked slot.
func (r *eventRepository) UpdateIfAvailable(ctx context.Context, e *models.Event) error {
	res := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND is_booked = ?", e.ID, false).
		Updates(map[string]interface{}{
			"title":       e.Title,
			"description": e.Description,
			"starts_at":   e.Start,
			"ends_at":     e.End,
			"duration":    e.Duration,
			"price":       e.Price,
			"currency":    e.Currency,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOrBooked(ctx, e.ID)
	}
	return nil
}

func (r *eventRepository) DeleteIfAvailable(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND is_booked = ?", id, false).Delete(&models.Event{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOrBooked(ctx, id)
	}
	return nil
}

func (r *eventRepository) missingOrBooked(ctx context.Context, id string) error {
	var e models.Event
	if err := r.db.WithContext(ctx).Select("id", "is_booked").First(&e, "id = ?", id).Error; err != nil {
		return err
	}
	if e.IsBooked {
		return ErrEventAlreadyBooked
	}
	// Matched but unchanged: the new values equal the stored ones.
	return nil
}

// List applies the first non-empty scope of the filter and orders by start.
func (r *eventRepository) List(ctx context.Context, f EventFilter) ([]models.Event, error) {
	q := r.db.WithContext(ctx).Model(&models.Event{}).Preload("Provider").Preload("Provider.User")
	switch {
	case f.ProviderID != "":
		q = q.Where("provider_id = ?", f.ProviderID)
	case f.DepartmentID != "":
		q = q.Where("provider_id IN (?)", r.db.Model(&models.Provider{}).Select("id").Where("department_id = ?", f.DepartmentID))
	case f.OrganizationID != "":
		depts := r.db.Model(&models.Department{}).Select("id").Where("organization_id = ?", f.OrganizationID)
		q = q.Where("provider_id IN (?)", r.db.Model(&models.Provider{}).Select("id").Where("department_id IN (?)", depts))
	}
	if f.AvailableOnly {
		q = q.Where("is_booked = ? AND starts_at >= ?", false, f.Now.UTC())
	}
	var events []models.Event
	err := q.Order("starts_at ASC").Find(&events).Error
	return events, err
}
