package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/slug"
)

var errLegacyDisabled = errors.New("subscription without organization metadata: legacy provisioning is disabled")

// provisionLegacy handles subscriptions bought outside the in-app checkout.
// It creates an enabled organization owned by the paying customer. Replays
// are recognized by the checkout id and do nothing.
func (s *Synchronizer) provisionLegacy(ctx context.Context, data EventData, raw string) error {
	if !s.opts.LegacyProvisioning {
		log.Warnf("webhook %s: %v", data.ID, errLegacyDisabled)
		return errLegacyDisabled
	}

	checkoutKey := data.checkoutKey(EventSubscriptionCreated)
	if checkoutKey == "" {
		return errors.New("legacy provisioning: payload carries no subscription id")
	}
	if _, err := s.repo.GetSubscriptionByCheckoutID(ctx, checkoutKey); err == nil {
		log.Infof("legacy provisioning for %s already done", checkoutKey)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	email := models.NormalizeEmail(data.Customer.Email)
	if email == "" {
		return errors.New("legacy provisioning: customer email is missing")
	}
	owner, err := s.findOrCreateOwner(ctx, email, data.Customer.Name)
	if err != nil {
		return fmt.Errorf("legacy provisioning: owner: %w", err)
	}

	name := strings.TrimSpace(data.Metadata.OrganizationName)
	if name == "" {
		customerName := strings.TrimSpace(data.Customer.Name)
		if customerName == "" {
			customerName = email
		}
		name = customerName + "'s Organization"
	}
	orgSlug, err := slug.Unique(ctx, name, s.orgs.SlugExists)
	if err != nil {
		return fmt.Errorf("legacy provisioning: slug: %w", err)
	}

	org := &models.Organization{Name: name, Slug: orgSlug, Enabled: true}
	org.MergeMetadata(map[string]interface{}{
		models.MetaCustomerID:         strings.TrimSpace(data.Customer.ID),
		models.MetaSubscriptionID:     strings.TrimSpace(data.ID),
		models.MetaSubscriptionStatus: metaStatusActive,
		models.MetaLegacyProvisioned:  true,
	})
	if err := s.orgs.CreateWithOwner(ctx, org, owner, owner.PromotionFor(models.ROLE_OWNER)); err != nil {
		return fmt.Errorf("legacy provisioning: organization: %w", err)
	}
	log.Infof("organization %s auto-created via webhook for %s", org.ID, email)

	_, recErr := s.recordSubscription(ctx, EventSubscriptionCreated, data, org.ID, owner.ID, raw)
	s.notifier.OrganizationProvisioned(org, owner)
	return recErr
}

func (s *Synchronizer) findOrCreateOwner(ctx context.Context, email, name string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	// No password: the owner sets one through the password reset flow.
	u = &models.User{Name: name, Email: email, Role: models.ROLE_OWNER, NeedsPasswordChange: true}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
