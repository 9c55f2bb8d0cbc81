package billing

import (
	"encoding/json"
	"strings"
	"time"
)

// Webhook event types handled by the synchronizer.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventOrderCreated         = "order.created"
	EventSubscriptionCanceled = "subscription.canceled"
)

// Envelope is the outer shape of every provider webhook.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventData is the union of the fields read from subscription and order
// payloads. Amounts are in minor units.
type EventData struct {
	ID                 string       `json:"id"`
	CheckoutID         string       `json:"checkout_id"`
	SubscriptionID     string       `json:"subscription_id"`
	ProductID          string       `json:"product_id"`
	Product            *ProductData `json:"product"`
	Amount             *int64       `json:"amount"`
	Currency           string       `json:"currency"`
	Status             string       `json:"status"`
	RecurringInterval  string       `json:"recurring_interval"`
	CurrentPeriodStart *time.Time   `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time   `json:"current_period_end"`
	Customer           CustomerData `json:"customer"`
	Metadata           Metadata     `json:"metadata"`

	// deliveryID is the envelope id of the webhook that carried this data.
	deliveryID string
}

type ProductData struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PriceAmount       *int64 `json:"price_amount"`
	PriceCurrency     string `json:"price_currency"`
	RecurringInterval string `json:"recurring_interval"`
}

type CustomerData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Metadata carries the identifiers attached at checkout time.
type Metadata struct {
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	UserID           string `json:"userId"`
}

func (d EventData) productRef() string {
	if s := strings.TrimSpace(d.ProductID); s != "" {
		return s
	}
	if d.Product != nil {
		return strings.TrimSpace(d.Product.ID)
	}
	return ""
}

// checkoutKey identifies the subscription row a payload belongs to. Orders
// and subscriptions of one checkout resolve to the same key.
func (d EventData) checkoutKey(eventType string) string {
	if s := strings.TrimSpace(d.CheckoutID); s != "" {
		return s
	}
	if eventType == EventOrderCreated && strings.TrimSpace(d.SubscriptionID) != "" {
		return strings.TrimSpace(d.SubscriptionID)
	}
	return strings.TrimSpace(d.ID)
}

// paymentKey identifies the payment a delivery records. Payloads without an
// object id fall back to the delivery id, then to the checkout key.
func (d EventData) paymentKey(eventType string) string {
	return eventType + ":" + firstNonEmpty(d.ID, d.deliveryID, d.checkoutKey(eventType))
}

func (d EventData) externalSubscriptionID(eventType string) string {
	if eventType == EventOrderCreated {
		return strings.TrimSpace(d.SubscriptionID)
	}
	return strings.TrimSpace(d.ID)
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Receipt is returned to the provider for every accepted delivery.
type Receipt struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"-"`
}

// CheckoutSession describes where the owner completes payment.
type CheckoutSession struct {
	CheckoutURL      string `json:"checkoutUrl"`
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	Amount           string `json:"amount"`
	Message          string `json:"message"`
}

// SubscriptionView is the member-facing subscription summary.
type SubscriptionView struct {
	Enabled            bool           `json:"enabled"`
	SubscriptionActive bool           `json:"subscriptionActive"`
	Metadata           map[string]any `json:"metadata"`
	NeedsSubscription  bool           `json:"needsSubscription"`
}
