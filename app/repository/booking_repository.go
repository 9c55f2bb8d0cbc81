package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medisched/medisched/app/models"
)

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// CreateForAvailableEvent runs in a txn: it locks the event row, flips
// is_booked with a guarded update and inserts the booking. Losing the
// guarded update or hitting the unique event_id index both surface as
// ErrEventAlreadyBooked.
func (r *bookingRepository) CreateForAvailableEvent(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev models.Event
		err := tx.Model(&models.Event{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "is_booked").
			Where("id = ?", b.EventID).
			Take(&ev).Error
		if err != nil {
			return err
		}
		if ev.IsBooked {
			return ErrEventAlreadyBooked
		}

		res := tx.Model(&models.Event{}).
			Where("id = ? AND is_booked = ?", b.EventID, false).
			Update("is_booked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrEventAlreadyBooked
		}

		if err := tx.Omit(clause.Associations).Create(b).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEventAlreadyBooked
			}
			return err
		}
		return nil
	})
}

func (r *bookingRepository) DeleteAndRelease(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", b.ID).Delete(&models.Booking{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Event{}).
			Where("id = ?", b.EventID).
			Update("is_booked", false).Error
	})
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.WithContext(ctx).
		Preload("Event").
		Preload("Event.Provider").
		Preload("Event.Provider.Department").
		Preload("Client").
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns bookings newest first for the first non-empty scope.
func (r *bookingRepository) List(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	q := r.db.WithContext(ctx).Preload("Event").Preload("Event.Provider").Preload("Client")
	switch {
	case f.ProviderID != "":
		q = q.Where("event_id IN (?)", r.db.Model(&models.Event{}).Select("id").Where("provider_id = ?", f.ProviderID))
	case f.OrganizationID != "":
		depts := r.db.Model(&models.Department{}).Select("id").Where("organization_id = ?", f.OrganizationID)
		providers := r.db.Model(&models.Provider{}).Select("id").Where("department_id IN (?)", depts)
		q = q.Where("event_id IN (?)", r.db.Model(&models.Event{}).Select("id").Where("provider_id IN (?)", providers))
	default:
		q = q.Where("client_user_id = ?", f.ClientUserID)
	}
	var bookings []models.Booking
	err := q.Order("created_at DESC").Find(&bookings).Error
	return bookings, err
}
