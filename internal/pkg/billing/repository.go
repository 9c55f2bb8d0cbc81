package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medisched/medisched/app/models"
)

// Repository provides DB operations used by the synchronizer.
type Repository interface {
	EnsureProduct(ctx context.Context, p *models.Product) error
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByCheckoutID(ctx context.Context, checkoutID string) (*models.Subscription, error)
	FindSubscriptionForCancel(ctx context.Context, externalSubscriptionID, checkoutID, orgID string) (*models.Subscription, error)
	SetSubscriptionStatus(ctx context.Context, id, status string) error
	AppendPayment(ctx context.Context, p *models.Payment) (bool, error)
	ApplyOrganizationState(ctx context.Context, orgID string, enabled bool, meta map[string]interface{}) (*models.Organization, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id, processingError string, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// EnsureProduct creates the product on first sight and loads the stored row
// otherwise. Existing catalog values are never overwritten by webhooks.
func (r *gormRepository) EnsureProduct(ctx context.Context, p *models.Product) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_product_id"}},
		DoNothing: true,
	}).Create(p).Error; err != nil {
		return err
	}
	// Load into a fresh value: p carries the generated id of the skipped insert.
	var stored models.Product
	if err := db.Where("external_product_id = ?", p.ExternalProductID).First(&stored).Error; err != nil {
		return err
	}
	*p = stored
	return nil
}

// UpsertSubscription inserts by checkout id and then fills in the fields the
// current payload knows. Empty values never blank out stored ones, so order
// and subscription payloads of one checkout converge on the same row.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_checkout_id"}},
		DoNothing: true,
	}).Create(sub)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	updates := map[string]interface{}{"status": sub.Status}
	for col, v := range map[string]string{
		"external_subscription_id": sub.ExternalSubscriptionID,
		"external_customer_id":     sub.ExternalCustomerID,
		"product_id":               sub.ProductID,
		"user_id":                  sub.UserID,
		"raw_payload_json":         sub.RawPayloadJSON,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	if sub.CurrentPeriodStart != nil {
		updates["current_period_start"] = sub.CurrentPeriodStart
	}
	if sub.CurrentPeriodEnd != nil {
		updates["current_period_end"] = sub.CurrentPeriodEnd
	}
	if err := db.Model(&models.Subscription{}).
		Where("external_checkout_id = ?", sub.ExternalCheckoutID).
		Updates(updates).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	var stored models.Subscription
	if err := db.Where("external_checkout_id = ?", sub.ExternalCheckoutID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (r *gormRepository) GetSubscriptionByCheckoutID(ctx context.Context, checkoutID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("external_checkout_id = ?", checkoutID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindSubscriptionForCancel tries the external subscription id, then the
// checkout id, then the newest subscription of the organization.
func (r *gormRepository) FindSubscriptionForCancel(ctx context.Context, externalSubscriptionID, checkoutID, orgID string) (*models.Subscription, error) {
	db := r.db.WithContext(ctx)
	var sub models.Subscription
	lookups := []struct {
		query string
		arg   string
	}{
		{"external_subscription_id = ?", externalSubscriptionID},
		{"external_checkout_id = ?", checkoutID},
		{"organization_id = ?", orgID},
	}
	for _, l := range lookups {
		if l.arg == "" {
			continue
		}
		err := db.Where(l.query, l.arg).Order("created_at DESC").First(&sub).Error
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *gormRepository) SetSubscriptionStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Update("status", status).Error
}

// AppendPayment inserts the payment unless its external id is known. It
// reports whether a row was written.
func (r *gormRepository) AppendPayment(ctx context.Context, p *models.Payment) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyOrganizationState sets the enabled flag and merges meta into the
// stored metadata under a row lock, so concurrent deliveries do not drop
// each other's keys.
func (r *gormRepository) ApplyOrganizationState(ctx context.Context, orgID string, enabled bool, meta map[string]interface{}) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&org, "id = ?", orgID).Error; err != nil {
			return err
		}
		org.MergeMetadata(meta)
		org.Enabled = enabled
		return tx.Model(&models.Organization{}).Where("id = ?", org.ID).Updates(map[string]interface{}{
			"enabled":  enabled,
			"metadata": org.Metadata,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id, processingError string, at time.Time) error {
	updates := map[string]interface{}{
		"processed_at":     &at,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
