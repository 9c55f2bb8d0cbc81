package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/config"
	"github.com/medisched/medisched/internal/pkg/notify"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

// Options is the synchronizer's slice of the process configuration.
type Options struct {
	Provider           string
	WebhookSecret      string
	LegacyProvisioning bool
	CheckoutBaseURL    string
	CheckoutProductID  string
	PriceLabel         string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Provider:           models.BillingProviderDefault,
		WebhookSecret:      cfg.WebhookSecret,
		LegacyProvisioning: cfg.WebhookLegacyProvisioning,
		CheckoutBaseURL:    cfg.CheckoutBaseURL,
		CheckoutProductID:  cfg.CheckoutProductID,
		PriceLabel:         cfg.CheckoutPriceLabel,
	}
}

// Synchronizer projects payment provider webhooks onto organization
// enablement and the subscription ledger.
type Synchronizer struct {
	repo     Repository
	users    repository.UserRepository
	orgs     repository.OrganizationRepository
	gate     *tenantgate.Gate
	notifier *notify.Notifier
	opts     Options
	now      func() time.Time
}

func NewSynchronizer(repo Repository, repos *repository.Repositories, gate *tenantgate.Gate, notifier *notify.Notifier, opts Options, now func() time.Time) *Synchronizer {
	if now == nil {
		now = time.Now
	}
	if opts.Provider == "" {
		opts.Provider = models.BillingProviderDefault
	}
	return &Synchronizer{
		repo:     repo,
		users:    repos.User,
		orgs:     repos.Organization,
		gate:     gate,
		notifier: notifier,
		opts:     opts,
		now:      now,
	}
}

// NewSynchronizerFromDB wires the synchronizer from a GORM DB handle.
func NewSynchronizerFromDB(db *gorm.DB, gate *tenantgate.Gate, notifier *notify.Notifier, opts Options, now func() time.Time) *Synchronizer {
	return NewSynchronizer(NewRepository(db), repository.NewRepositories(db), gate, notifier, opts, now)
}

// HandleWebhook verifies, records and applies one delivery. Only a bad
// signature or an unparsable payload is returned as an error; failures
// while applying the event are stored on the ledger row and the delivery is
// still acknowledged.
func (s *Synchronizer) HandleWebhook(ctx context.Context, signature string, payload []byte) (*Receipt, error) {
	if strings.TrimSpace(s.opts.WebhookSecret) == "" {
		log.Errorf("webhook rejected: WEBHOOK_SECRET is not configured")
		return nil, apperrors.Unauthorized("webhook signature cannot be verified")
	}
	if !VerifyWebhookSignature(payload, signature, s.opts.WebhookSecret) {
		log.Warnf("webhook rejected: invalid signature")
		return nil, apperrors.Unauthorized("invalid webhook signature")
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, apperrors.Validation("malformed webhook payload")
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return nil, apperrors.Validation("webhook type is required")
	}
	var data EventData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, apperrors.Validation("malformed webhook data")
		}
	}
	data.deliveryID = strings.TrimSpace(env.ID)

	created, ledger, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        s.opts.Provider,
		ProviderEventID: env.ID,
		EventType:       env.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		// Still acknowledge; the projection below is idempotent on its own.
		log.Errorf("webhook ledger write failed: %v", err)
	} else if !created && ledger.ProcessedAt != nil && ledger.ProcessingError == "" {
		log.Infof("webhook %s (%s) already processed", ledger.ProviderEventID, env.Type)
		return &Receipt{Received: true, Duplicate: true, EventID: ledger.ID}, nil
	}

	procErr := s.apply(ctx, env.Type, data, string(payload))
	if procErr != nil {
		log.Errorf("webhook %s processed with errors: %v", env.Type, procErr)
	}

	receipt := &Receipt{Received: true}
	if ledger != nil {
		receipt.EventID = ledger.ID
		if err := s.MarkWebhookProcessed(ctx, ledger.ID, procErr); err != nil {
			log.Errorf("webhook %s: mark processed failed: %v", ledger.ID, err)
		}
	}
	return receipt, nil
}

func (s *Synchronizer) apply(ctx context.Context, eventType string, data EventData, raw string) error {
	switch eventType {
	case EventSubscriptionCreated, EventOrderCreated:
		md := data.Metadata
		switch {
		case md.OrganizationID != "":
			return s.activate(ctx, eventType, data, raw)
		case md.UserID != "":
			return errors.New("metadata.organizationId is missing")
		case eventType == EventSubscriptionCreated:
			return s.provisionLegacy(ctx, data, raw)
		default:
			log.Infof("webhook %s without organization metadata ignored", eventType)
			return nil
		}
	case EventSubscriptionCanceled:
		return s.cancel(ctx, data)
	default:
		log.Infof("webhook type %s ignored", eventType)
		return nil
	}
}

// activate records the subscription facts and enables the organization.
// Each step runs even if an earlier one failed.
func (s *Synchronizer) activate(ctx context.Context, eventType string, data EventData, raw string) error {
	orgID := data.Metadata.OrganizationID
	var errs []error

	sub, err := s.recordSubscription(ctx, eventType, data, orgID, data.Metadata.UserID, raw)
	if err != nil {
		errs = append(errs, err)
	}

	org, err := s.repo.ApplyOrganizationState(ctx, orgID, true, s.activationMetadata(eventType, data, sub))
	if err != nil {
		errs = append(errs, fmt.Errorf("enable organization %s: %w", orgID, err))
	} else {
		log.Infof("organization %s enabled by %s", org.ID, eventType)
		s.notifier.SubscriptionActivated(org, s.lookupUser(ctx, data.Metadata.UserID))
	}
	return errors.Join(errs...)
}

// recordSubscription upserts the product and the subscription and appends
// the payment.
func (s *Synchronizer) recordSubscription(ctx context.Context, eventType string, data EventData, orgID, userID, raw string) (*models.Subscription, error) {
	var errs []error

	product, err := s.ensureProduct(ctx, data)
	if err != nil {
		errs = append(errs, fmt.Errorf("product: %w", err))
	}

	checkoutKey := data.checkoutKey(eventType)
	if checkoutKey == "" {
		errs = append(errs, errors.New("payload carries no checkout or subscription id"))
		return nil, errors.Join(errs...)
	}

	sub := &models.Subscription{
		OrganizationID:         orgID,
		UserID:                 userID,
		ExternalCheckoutID:     checkoutKey,
		ExternalSubscriptionID: data.externalSubscriptionID(eventType),
		ExternalCustomerID:     strings.TrimSpace(data.Customer.ID),
		Status:                 normalizeStatus(data.Status),
		CurrentPeriodStart:     data.CurrentPeriodStart,
		CurrentPeriodEnd:       data.CurrentPeriodEnd,
		RawPayloadJSON:         raw,
	}
	if product != nil {
		sub.ProductID = product.ID
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		errs = append(errs, fmt.Errorf("subscription: %w", err))
		return nil, errors.Join(errs...)
	}

	payment := &models.Payment{
		SubscriptionID:    sub.ID,
		ExternalPaymentID: data.paymentKey(eventType),
		Amount:            s.amount(data, product),
		Currency:          normalizeCurrency(firstNonEmpty(data.Currency, productCurrency(product))),
		Status:            "succeeded",
	}
	if _, err := s.repo.AppendPayment(ctx, payment); err != nil {
		errs = append(errs, fmt.Errorf("payment: %w", err))
	}
	return sub, errors.Join(errs...)
}

func (s *Synchronizer) ensureProduct(ctx context.Context, data EventData) (*models.Product, error) {
	ref := firstNonEmpty(data.productRef(), s.opts.CheckoutProductID)
	if ref == "" {
		return nil, nil
	}
	p := &models.Product{
		ExternalProductID: ref,
		Name:              ref,
		Currency:          models.DefaultCurrency,
		BillingInterval:   models.BillingIntervalMonth,
	}
	if pd := data.Product; pd != nil {
		if pd.Name != "" {
			p.Name = pd.Name
		}
		if pd.PriceAmount != nil {
			p.Price = decimal.New(*pd.PriceAmount, -2)
		}
		p.Currency = normalizeCurrency(pd.PriceCurrency)
		if pd.RecurringInterval != "" {
			p.BillingInterval = normalizeInterval(pd.RecurringInterval)
		}
	} else if data.RecurringInterval != "" {
		p.BillingInterval = normalizeInterval(data.RecurringInterval)
	}
	if err := s.repo.EnsureProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Synchronizer) amount(data EventData, product *models.Product) decimal.Decimal {
	if data.Amount != nil {
		return decimal.New(*data.Amount, -2)
	}
	if product != nil {
		return product.Price
	}
	return decimal.Zero
}

func (s *Synchronizer) activationMetadata(eventType string, data EventData, sub *models.Subscription) map[string]interface{} {
	meta := map[string]interface{}{
		models.MetaSubscriptionStatus:    metaStatusActive,
		models.MetaSubscriptionStartedAt: s.now().UTC().Format(time.RFC3339),
	}
	if c := strings.TrimSpace(data.Customer.ID); c != "" {
		meta[models.MetaCustomerID] = c
	}
	if sub != nil {
		meta[models.MetaCheckoutID] = sub.ExternalCheckoutID
		if sub.ExternalSubscriptionID != "" {
			meta[models.MetaSubscriptionID] = sub.ExternalSubscriptionID
		}
	} else if id := data.externalSubscriptionID(eventType); id != "" {
		meta[models.MetaSubscriptionID] = id
	}
	return meta
}

// cancel disables the organization and marks its subscription cancelled.
func (s *Synchronizer) cancel(ctx context.Context, data EventData) error {
	var errs []error
	orgID := data.Metadata.OrganizationID

	sub, err := s.repo.FindSubscriptionForCancel(ctx, strings.TrimSpace(data.ID), strings.TrimSpace(data.CheckoutID), orgID)
	switch {
	case err == nil:
		if isEntitlingStatus(sub.Status) {
			if err := s.repo.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusCancelled); err != nil {
				errs = append(errs, fmt.Errorf("subscription: %w", err))
			}
		}
		if orgID == "" {
			orgID = sub.OrganizationID
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Warnf("cancellation for unknown subscription %s", data.ID)
	default:
		errs = append(errs, fmt.Errorf("subscription lookup: %w", err))
	}

	if orgID == "" {
		errs = append(errs, errors.New("cancellation does not identify an organization"))
		return errors.Join(errs...)
	}
	org, err := s.repo.ApplyOrganizationState(ctx, orgID, false, map[string]interface{}{
		models.MetaSubscriptionStatus:     metaStatusCanceled,
		models.MetaSubscriptionCanceledAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("disable organization %s: %w", orgID, err))
		return errors.Join(errs...)
	}
	log.Infof("organization %s disabled due to subscription cancellation", org.ID)

	var ownerID string
	if sub != nil {
		ownerID = sub.UserID
	}
	s.notifier.SubscriptionCanceled(org, s.lookupUser(ctx, ownerID))
	return errors.Join(errs...)
}

func (s *Synchronizer) lookupUser(ctx context.Context, id string) *models.User {
	if id == "" {
		return nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		log.Warnf("billing notification: user %s lookup failed: %v", id, err)
		return nil
	}
	return u
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Synchronizer) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Synchronizer) MarkWebhookProcessed(ctx context.Context, webhookEventID string, processingErr error) error {
	if webhookEventID == "" {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg, s.now().UTC())
}

// CreateCheckout builds the provider checkout link for a disabled
// organization. Only its owner may start a checkout.
func (s *Synchronizer) CreateCheckout(ctx context.Context, caller tenantgate.Principal, orgID string) (*CheckoutSession, error) {
	if err := s.gate.RequireRole(ctx, caller, orgID, models.ROLE_OWNER); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}
	if org.Enabled {
		return nil, apperrors.Conflict("organization is already subscribed")
	}

	q := url.Values{}
	q.Set("org", org.Slug)
	if s.opts.CheckoutProductID != "" {
		q.Set("product", s.opts.CheckoutProductID)
	}
	q.Set("metadata[organizationId]", org.ID)
	q.Set("metadata[organizationName]", org.Name)
	q.Set("metadata[userId]", caller.UserID)
	if u := s.lookupUser(ctx, caller.UserID); u != nil {
		q.Set("customer_email", u.Email)
	}

	return &CheckoutSession{
		CheckoutURL:      strings.TrimRight(s.opts.CheckoutBaseURL, "?") + "?" + q.Encode(),
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Amount:           s.opts.PriceLabel,
		Message:          "Complete payment to activate your organization",
	}, nil
}

// SubscriptionStatus is readable by any member of the organization.
func (s *Synchronizer) SubscriptionStatus(ctx context.Context, caller tenantgate.Principal, orgID string) (*SubscriptionView, error) {
	if err := s.gate.RequireMember(ctx, caller, orgID); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}
	meta := map[string]any{}
	for k, v := range org.Metadata {
		meta[k] = v
	}
	return &SubscriptionView{
		Enabled:            org.Enabled,
		SubscriptionActive: org.Enabled,
		Metadata:           meta,
		NeedsSubscription:  !org.Enabled,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func productCurrency(p *models.Product) string {
	if p == nil {
		return ""
	}
	return p.Currency
}
