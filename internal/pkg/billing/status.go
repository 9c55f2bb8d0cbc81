package billing

import (
	"strings"

	"github.com/medisched/medisched/app/models"
)

// Metadata status values. Cancellation is spelled the way the provider
// reports it.
const (
	metaStatusActive   = "active"
	metaStatusCanceled = "canceled"
)

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

// normalizeStatus maps provider statuses onto the stored subscription
// states. Anything unrecognized on a creation event counts as active.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "canceled", "cancelled", "revoked":
		return models.SubscriptionStatusCancelled
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "incomplete", "incomplete_expired":
		return models.SubscriptionStatusIncomplete
	default:
		return models.SubscriptionStatusActive
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue, "trialing":
		return true
	default:
		return false
	}
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if len(c) != 3 {
		return models.DefaultCurrency
	}
	return c
}
