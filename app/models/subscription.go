package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusCancelled  = "cancelled"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusIncomplete = "incomplete"
)

const BillingProviderDefault = "subscription-provider"

// Product mirrors a payment provider catalog entry. Rows are created lazily
// the first time a webhook references an unknown product.
type Product struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalProductID string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"externalProductId"`
	Name              string          `gorm:"type:varchar(150)" json:"name"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Currency          string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BillingInterval   string          `gorm:"type:varchar(16);not null;default:'month'" json:"billingInterval"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Subscription links an organization, its subscriber and a product. Upserts
// are keyed by the external checkout id.
type Subscription struct {
	ID                     string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID         string     `gorm:"type:varchar(36);not null;index" json:"organizationId"`
	UserID                 string     `gorm:"type:varchar(36);not null;index" json:"userId"`
	ProductID              string     `gorm:"type:varchar(36);index" json:"productId"`
	ExternalCheckoutID     string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"externalCheckoutId"`
	ExternalSubscriptionID string     `gorm:"type:varchar(191);index" json:"externalSubscriptionId"`
	ExternalCustomerID     string     `gorm:"type:varchar(191);index" json:"externalCustomerId"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart     *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"currentPeriodEnd,omitempty"`
	RawPayloadJSON         string     `gorm:"type:text" json:"-"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Payment is an append-only charge record.
type Payment struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubscriptionID    string          `gorm:"type:varchar(36);not null;index" json:"subscriptionId"`
	ExternalPaymentID string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"externalPaymentId"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status            string          `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// WebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing.
type WebhookEvent struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Provider        string     `gorm:"type:varchar(40);not null;index:ux_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_provider_event,unique,priority:2" json:"providerEventId"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"eventType"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payloadJson"`
	SignatureValid  bool       `gorm:"default:false" json:"signatureValid"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
