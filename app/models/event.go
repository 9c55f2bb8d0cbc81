package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultCurrency = "USD"

// Event is one bookable slot published by a provider. IsBooked is true
// exactly when a Booking references the event.
type Event struct {
	ID          string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProviderID  string              `gorm:"type:varchar(36);not null;index:idx_events_provider_start,priority:1" json:"providerId"`
	Title       string              `gorm:"type:varchar(200);not null" json:"title"`
	Description string              `gorm:"type:text" json:"description,omitempty"`
	Start       time.Time           `gorm:"column:starts_at;not null;index:idx_events_provider_start,priority:2;index" json:"start"`
	End         time.Time           `gorm:"column:ends_at;not null" json:"end"`
	Duration    int                 `gorm:"not null" json:"duration"`
	Price       decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"price"`
	Currency    string              `gorm:"type:varchar(3);default:'USD'" json:"currency,omitempty"`
	IsBooked    bool                `gorm:"not null;default:false;index" json:"isBooked"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updatedAt"`

	Provider *Provider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Booking  *Booking  `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"booking,omitempty"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// DurationMinutes returns the rounded length of [start, end) in minutes.
func DurationMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

const BookingStatusConfirmed = "confirmed"

// Booking reserves exactly one event for one client.
type Booking struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	EventID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"eventId"`
	ClientUserID string    `gorm:"type:varchar(36);not null;index" json:"clientUserId"`
	Status       string    `gorm:"type:varchar(20);not null;default:'confirmed'" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Event  *Event `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Client *User  `gorm:"foreignKey:ClientUserID;constraint:OnDelete:CASCADE" json:"client,omitempty"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BookingStatusConfirmed
	}
	return nil
}
