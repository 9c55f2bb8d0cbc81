package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metadata keys written by the subscription synchronizer.
const (
	MetaCustomerID             = "customerId"
	MetaSubscriptionID         = "subscriptionId"
	MetaCheckoutID             = "checkoutId"
	MetaSubscriptionStatus     = "subscriptionStatus"
	MetaSubscriptionStartedAt  = "subscriptionStartedAt"
	MetaSubscriptionCanceledAt = "subscriptionCanceledAt"
	MetaLegacyProvisioned      = "legacyProvisioned"
)

// Organization is a tenant. It is created disabled and only becomes usable
// once a subscription enables it.
type Organization struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string            `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Slug      string            `gorm:"type:varchar(191);not null;uniqueIndex" json:"slug" validate:"required,max=191"`
	Logo      string            `gorm:"type:varchar(255)" json:"logo,omitempty"`
	Enabled   bool              `gorm:"not null;default:false;index" json:"enabled"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`

	Departments []Department `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"departments,omitempty"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *Organization) Validate() error {
	v := validator.New()

	return v.Struct(o)
}

// MergeMetadata overlays values onto the metadata blob, keeping unrelated keys.
func (o *Organization) MergeMetadata(values map[string]interface{}) {
	if o.Metadata == nil {
		o.Metadata = datatypes.JSONMap{}
	}
	for k, v := range values {
		o.Metadata[k] = v
	}
}

func (o *Organization) MetadataString(key string) string {
	if o.Metadata == nil {
		return ""
	}
	if s, ok := o.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// Member links a user to an organization. The role lives on the user.
type Member struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string    `gorm:"type:varchar(36);not null;index:ux_members_org_user,unique,priority:1" json:"organizationId"`
	UserID         string    `gorm:"type:varchar(36);not null;index:ux_members_org_user,unique,priority:2;index" json:"userId"`
	Email          string    `gorm:"type:varchar(200)" json:"email"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
