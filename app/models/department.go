package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Department struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string    `gorm:"type:varchar(36);not null;index" json:"organizationId" validate:"required"`
	Name           string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Providers []Provider `gorm:"foreignKey:DepartmentID;constraint:OnDelete:CASCADE" json:"providers,omitempty"`
}

func (d *Department) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (d *Department) Validate() error {
	v := validator.New()

	return v.Struct(d)
}

// Provider wraps a user identity that publishes availability inside one
// department. A user has at most one provider identity.
type Provider struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"userId"`
	DepartmentID   string    `gorm:"type:varchar(36);not null;index" json:"departmentId"`
	Bio            string    `gorm:"type:text" json:"bio,omitempty" validate:"max=2000"`
	Specialization string    `gorm:"type:varchar(150)" json:"specialization,omitempty" validate:"max=150"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	User       *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Department *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Events     []Event     `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE" json:"events,omitempty"`
}

func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Provider) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
