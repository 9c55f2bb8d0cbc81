package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/fixtures"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

const secret = "whsec_test"

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	db     *gorm.DB
	sync   *Synchronizer
	tenant *fixtures.Tenant
}

func setup(t *testing.T, opts Options) *harness {
	db := fixtures.NewDB(t)
	repos := repository.NewRepositories(db)
	if opts.WebhookSecret == "" {
		opts.WebhookSecret = secret
	}
	return &harness{
		db:     db,
		sync:   NewSynchronizerFromDB(db, tenantgate.New(repos.Organization, repos.User), nil, opts, fixtures.NewClock(now).Now),
		tenant: fixtures.NewTenant(t, db, false),
	}
}

func (h *harness) deliver(t *testing.T, payload map[string]any) (*Receipt, error) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return h.sync.HandleWebhook(context.Background(), SignPayload(raw, secret), raw)
}

func (h *harness) org(t *testing.T) *models.Organization {
	t.Helper()
	var org models.Organization
	require.NoError(t, h.db.First(&org, "id = ?", h.tenant.Org.ID).Error)
	return &org
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func (h *harness) created(id string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": EventSubscriptionCreated,
		"data": map[string]any{
			"id":          "sub_1",
			"checkout_id": "chk_1",
			"status":      "active",
			"amount":      1000,
			"currency":    "usd",
			"product":     map[string]any{"id": "prod_monthly", "name": "Monthly", "price_amount": 1000, "price_currency": "usd", "recurring_interval": "month"},
			"customer":    map[string]any{"id": "cus_1", "email": h.tenant.Owner.Email, "name": h.tenant.Owner.Name},
			"metadata":    map[string]any{"organizationId": h.tenant.Org.ID, "userId": h.tenant.Owner.ID},
		},
	}
}

func TestHandleWebhookRejectsUnverifiedDeliveries(t *testing.T) {
	h := setup(t, Options{})
	ctx := context.Background()
	raw := []byte(`{"type":"subscription.created","data":{}}`)

	_, err := h.sync.HandleWebhook(ctx, "deadbeef", raw)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

	_, err = h.sync.HandleWebhook(ctx, "", raw)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

	// No secret configured fails closed even for a correctly signed body.
	open := NewSynchronizerFromDB(h.db, nil, nil, Options{}, nil)
	_, err = open.HandleWebhook(ctx, SignPayload(raw, secret), raw)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

	assert.EqualValues(t, 0, count(t, h.db, &models.WebhookEvent{}))
}

func TestHandleWebhookRejectsMalformedPayloads(t *testing.T) {
	h := setup(t, Options{})
	ctx := context.Background()

	for _, raw := range []string{`not json`, `{"data":{}}`, `{"type":"order.created","data":"x"}`} {
		_, err := h.sync.HandleWebhook(ctx, SignPayload([]byte(raw), secret), []byte(raw))
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation), raw)
	}
}

func TestSubscriptionCreatedEnablesOrganization(t *testing.T) {
	h := setup(t, Options{})

	receipt, err := h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)
	assert.True(t, receipt.Received)

	org := h.org(t)
	assert.True(t, org.Enabled)
	assert.Equal(t, "active", org.MetadataString(models.MetaSubscriptionStatus))
	assert.Equal(t, "cus_1", org.MetadataString(models.MetaCustomerID))
	assert.Equal(t, "sub_1", org.MetadataString(models.MetaSubscriptionID))

	var sub models.Subscription
	require.NoError(t, h.db.First(&sub, "external_checkout_id = ?", "chk_1").Error)
	assert.Equal(t, h.tenant.Owner.ID, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	var product models.Product
	require.NoError(t, h.db.First(&product, "external_product_id = ?", "prod_monthly").Error)
	assert.Equal(t, product.ID, sub.ProductID)
	assert.Equal(t, "10", product.Price.String())

	var payment models.Payment
	require.NoError(t, h.db.First(&payment, "subscription_id = ?", sub.ID).Error)
	assert.Equal(t, "10", payment.Amount.String())
	assert.Equal(t, "USD", payment.Currency)

	var ledger models.WebhookEvent
	require.NoError(t, h.db.First(&ledger, "provider_event_id = ?", "evt_1").Error)
	assert.NotNil(t, ledger.ProcessedAt)
	assert.Empty(t, ledger.ProcessingError)
}

func TestReplayedWebhookIsIdempotent(t *testing.T) {
	h := setup(t, Options{})

	_, err := h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)

	receipt, err := h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)

	// A redelivery under a new envelope id still converges on one row.
	_, err = h.deliver(t, h.created("evt_2"))
	require.NoError(t, err)

	assert.True(t, h.org(t).Enabled)
	assert.EqualValues(t, 1, count(t, h.db, &models.Subscription{}))
	assert.EqualValues(t, 1, count(t, h.db, &models.Payment{}))
	assert.EqualValues(t, 1, count(t, h.db, &models.Product{}))
	assert.EqualValues(t, 2, count(t, h.db, &models.WebhookEvent{}))
}

func TestOrderJoinsSubscriptionOfSameCheckout(t *testing.T) {
	h := setup(t, Options{})

	_, err := h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)

	_, err = h.deliver(t, map[string]any{
		"id":   "evt_order",
		"type": EventOrderCreated,
		"data": map[string]any{
			"id":              "ord_1",
			"checkout_id":     "chk_1",
			"subscription_id": "sub_1",
			"amount":          1000,
			"currency":        "usd",
			"product_id":      "prod_monthly",
			"metadata":        map[string]any{"organizationId": h.tenant.Org.ID, "userId": h.tenant.Owner.ID},
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, count(t, h.db, &models.Subscription{}))
	assert.EqualValues(t, 2, count(t, h.db, &models.Payment{}))

	var sub models.Subscription
	require.NoError(t, h.db.First(&sub).Error)
	assert.Equal(t, "sub_1", sub.ExternalSubscriptionID)
}

func TestOrdersWithoutObjectIDKeepTheirPayments(t *testing.T) {
	h := setup(t, Options{})
	second := fixtures.NewTenant(t, h.db, false)

	order := func(envelopeID, checkoutID string, tenant *fixtures.Tenant) map[string]any {
		return map[string]any{
			"id":   envelopeID,
			"type": EventOrderCreated,
			"data": map[string]any{
				"checkout_id": checkoutID,
				"amount":      1000,
				"currency":    "usd",
				"product_id":  "prod_monthly",
				"metadata":    map[string]any{"organizationId": tenant.Org.ID, "userId": tenant.Owner.ID},
			},
		}
	}

	_, err := h.deliver(t, order("evt_a", "chk_a", h.tenant))
	require.NoError(t, err)
	_, err = h.deliver(t, order("evt_b", "chk_b", second))
	require.NoError(t, err)

	assert.EqualValues(t, 2, count(t, h.db, &models.Subscription{}))
	assert.EqualValues(t, 2, count(t, h.db, &models.Payment{}))

	var keys []string
	require.NoError(t, h.db.Model(&models.Payment{}).Order("external_payment_id").Pluck("external_payment_id", &keys).Error)
	assert.Equal(t, []string{"order.created:evt_a", "order.created:evt_b"}, keys)
}

func TestSubscriptionCanceledDisablesOrganization(t *testing.T) {
	h := setup(t, Options{})

	_, err := h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)

	_, err = h.deliver(t, map[string]any{
		"id":   "evt_cancel",
		"type": EventSubscriptionCanceled,
		"data": map[string]any{"id": "sub_1", "metadata": map[string]any{"organizationId": h.tenant.Org.ID}},
	})
	require.NoError(t, err)

	org := h.org(t)
	assert.False(t, org.Enabled)
	assert.Equal(t, "canceled", org.MetadataString(models.MetaSubscriptionStatus))
	assert.Equal(t, now.Format(time.RFC3339), org.MetadataString(models.MetaSubscriptionCanceledAt))
	// Keys from the activation survive the merge.
	assert.Equal(t, "cus_1", org.MetadataString(models.MetaCustomerID))

	var sub models.Subscription
	require.NoError(t, h.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestSubStepFailureStillAcknowledges(t *testing.T) {
	h := setup(t, Options{})

	payload := h.created("evt_missing")
	payload["data"].(map[string]any)["metadata"] = map[string]any{"organizationId": "missing", "userId": h.tenant.Owner.ID}

	receipt, err := h.deliver(t, payload)
	require.NoError(t, err)
	assert.True(t, receipt.Received)

	var ledger models.WebhookEvent
	require.NoError(t, h.db.First(&ledger, "provider_event_id = ?", "evt_missing").Error)
	assert.Contains(t, ledger.ProcessingError, "enable organization")
}

func legacyPayload(id string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": EventSubscriptionCreated,
		"data": map[string]any{
			"id":       "sub_legacy",
			"customer": map[string]any{"id": "cus_9", "email": "New.Owner@Example.com", "name": "Nina"},
		},
	}
}

func TestLegacyProvisioningIsOffByDefault(t *testing.T) {
	h := setup(t, Options{})
	before := count(t, h.db, &models.Organization{})

	receipt, err := h.deliver(t, legacyPayload("evt_legacy"))
	require.NoError(t, err)
	assert.True(t, receipt.Received)
	assert.Equal(t, before, count(t, h.db, &models.Organization{}))

	var ledger models.WebhookEvent
	require.NoError(t, h.db.First(&ledger, "provider_event_id = ?", "evt_legacy").Error)
	assert.Contains(t, ledger.ProcessingError, "legacy provisioning is disabled")
}

func TestLegacyProvisioning(t *testing.T) {
	h := setup(t, Options{LegacyProvisioning: true})
	before := count(t, h.db, &models.Organization{})

	_, err := h.deliver(t, legacyPayload("evt_legacy"))
	require.NoError(t, err)
	// Same subscription under another envelope id.
	_, err = h.deliver(t, legacyPayload("evt_legacy_2"))
	require.NoError(t, err)

	assert.Equal(t, before+1, count(t, h.db, &models.Organization{}))

	var org models.Organization
	require.NoError(t, h.db.First(&org, "slug = ?", "nina-s-organization").Error)
	assert.True(t, org.Enabled)
	assert.Equal(t, "Nina's Organization", org.Name)

	var user models.User
	require.NoError(t, h.db.First(&user, "email = ?", "new.owner@example.com").Error)
	assert.Equal(t, models.ROLE_OWNER, user.Role)

	var member models.Member
	require.NoError(t, h.db.First(&member, "organization_id = ? AND user_id = ?", org.ID, user.ID).Error)
	assert.EqualValues(t, 1, count(t, h.db, &models.Subscription{}))
}

func TestCreateCheckout(t *testing.T) {
	h := setup(t, Options{CheckoutBaseURL: "https://checkout.example.com", CheckoutProductID: "prod_monthly", PriceLabel: "$10.00/month"})
	ctx := context.Background()
	owner := tenantgate.Principal{UserID: h.tenant.Owner.ID, Role: models.ROLE_OWNER}

	session, err := h.sync.CreateCheckout(ctx, owner, h.tenant.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, "$10.00/month", session.Amount)
	assert.Contains(t, session.CheckoutURL, "https://checkout.example.com?")
	assert.Contains(t, session.CheckoutURL, "product=prod_monthly")
	assert.Contains(t, session.CheckoutURL, h.tenant.Org.ID)

	_, err = h.sync.CreateCheckout(ctx, tenantgate.Principal{UserID: h.tenant.ProviderUser.ID, Role: models.ROLE_PROVIDER}, h.tenant.Org.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	require.NoError(t, h.db.Model(&models.Organization{}).Where("id = ?", h.tenant.Org.ID).Update("enabled", true).Error)
	_, err = h.sync.CreateCheckout(ctx, owner, h.tenant.Org.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
}

func TestSubscriptionStatus(t *testing.T) {
	h := setup(t, Options{})
	ctx := context.Background()

	view, err := h.sync.SubscriptionStatus(ctx, tenantgate.Principal{UserID: h.tenant.ProviderUser.ID, Role: models.ROLE_PROVIDER}, h.tenant.Org.ID)
	require.NoError(t, err)
	assert.False(t, view.Enabled)
	assert.True(t, view.NeedsSubscription)

	_, err = h.deliver(t, h.created("evt_1"))
	require.NoError(t, err)

	view, err = h.sync.SubscriptionStatus(ctx, tenantgate.Principal{UserID: h.tenant.Owner.ID, Role: models.ROLE_OWNER}, h.tenant.Org.ID)
	require.NoError(t, err)
	assert.True(t, view.SubscriptionActive)
	assert.Equal(t, "active", view.Metadata[models.MetaSubscriptionStatus])

	outsider := fixtures.User(t, h.db, models.ROLE_CLIENT)
	_, err = h.sync.SubscriptionStatus(ctx, tenantgate.Principal{UserID: outsider.ID, Role: outsider.Role}, h.tenant.Org.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}
