// Package notify fans domain events out to email and the message bus.
// Delivery is best-effort: failures are logged and never reach the caller.
package notify

import (
	"bytes"
	"context"
	"html/template"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/mail"
	"github.com/medisched/medisched/internal/pkg/mq"
)

const defaultTimeout = 10 * time.Second

// EventPublisher is the part of mq.Publisher the notifier needs.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Notifier struct {
	mailer  mail.Mailer
	bus     EventPublisher
	timeout time.Duration
	wg      sync.WaitGroup
}

func New(mailer mail.Mailer, bus EventPublisher) *Notifier {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	if bus == nil {
		bus = mq.Discard{}
	}
	return &Notifier{mailer: mailer, bus: bus, timeout: defaultTimeout}
}

// Wait blocks until every dispatched notification has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatch(name string, fn func(ctx context.Context) error) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Errorf("notification %s failed: %v", name, err)
		}
	}()
}

func (n *Notifier) email(ctx context.Context, to, subject string, tpl *template.Template, data any) error {
	if to == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return err
	}
	return n.mailer.Send(ctx, mail.Message{To: to, Subject: subject, HTML: buf.String()})
}

// BookingMessage is the bus payload for booking events.
type BookingMessage struct {
	BookingID      string    `json:"bookingId"`
	EventID        string    `json:"eventId"`
	ProviderID     string    `json:"providerId"`
	ClientUserID   string    `json:"clientUserId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	OccurredAt     time.Time `json:"occurredAt"`
	OrganizationID string    `json:"organizationId,omitempty"`
}

type bookingMail struct {
	Title    string
	Start    string
	End      string
	Client   string
	Provider string
}

func newBookingMessage(b *models.Booking, e *models.Event) BookingMessage {
	msg := BookingMessage{
		BookingID:    b.ID,
		EventID:      e.ID,
		ProviderID:   e.ProviderID,
		ClientUserID: b.ClientUserID,
		Start:        e.Start,
		End:          e.End,
		OccurredAt:   time.Now().UTC(),
	}
	if e.Provider != nil && e.Provider.Department != nil {
		msg.OrganizationID = e.Provider.Department.OrganizationID
	}
	return msg
}

func newBookingMail(e *models.Event, client, provider *models.User) bookingMail {
	m := bookingMail{
		Title: e.Title,
		Start: e.Start.Format(time.RFC1123),
		End:   e.End.Format(time.RFC1123),
	}
	if client != nil {
		m.Client = client.Name
	}
	if provider != nil {
		m.Provider = provider.Name
	}
	return m
}

func emailOf(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

// BookingConfirmed mails both parties and publishes booking.created.
func (n *Notifier) BookingConfirmed(b *models.Booking, e *models.Event, client, provider *models.User) {
	msg := newBookingMessage(b, e)
	data := newBookingMail(e, client, provider)
	n.dispatch(mq.KeyBookingCreated, func(ctx context.Context) error {
		if err := n.email(ctx, emailOf(client), "Your appointment is confirmed", bookingConfirmedClientTpl, data); err != nil {
			log.Warnf("booking %s: client email failed: %v", b.ID, err)
		}
		if err := n.email(ctx, emailOf(provider), "New appointment booked", bookingConfirmedProviderTpl, data); err != nil {
			log.Warnf("booking %s: provider email failed: %v", b.ID, err)
		}
		return n.bus.PublishJSON(ctx, mq.KeyBookingCreated, msg)
	})
}

// BookingCancelled tells the provider the slot is free again.
func (n *Notifier) BookingCancelled(b *models.Booking, e *models.Event, provider *models.User) {
	msg := newBookingMessage(b, e)
	data := newBookingMail(e, nil, provider)
	n.dispatch(mq.KeyBookingCancelled, func(ctx context.Context) error {
		if err := n.email(ctx, emailOf(provider), "Appointment cancelled", bookingCancelledTpl, data); err != nil {
			log.Warnf("booking %s: provider email failed: %v", b.ID, err)
		}
		return n.bus.PublishJSON(ctx, mq.KeyBookingCancelled, msg)
	})
}

// OrganizationMessage is the bus payload for organization lifecycle events.
type OrganizationMessage struct {
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Enabled        bool      `json:"enabled"`
	OwnerID        string    `json:"ownerId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type orgMail struct {
	Organization string
	Owner        string
}

func newOrgMessage(org *models.Organization, owner *models.User) OrganizationMessage {
	m := OrganizationMessage{
		OrganizationID: org.ID,
		Name:           org.Name,
		Slug:           org.Slug,
		Enabled:        org.Enabled,
		OccurredAt:     time.Now().UTC(),
	}
	if owner != nil {
		m.OwnerID = owner.ID
	}
	return m
}

func newOrgMail(org *models.Organization, owner *models.User) orgMail {
	m := orgMail{Organization: org.Name}
	if owner != nil {
		m.Owner = owner.Name
	}
	return m
}

func (n *Notifier) OrganizationCreated(org *models.Organization, owner *models.User) {
	n.organizationEvent(mq.KeyOrganizationCreated, "Your organization has been created", organizationCreatedTpl, org, owner)
}

// OrganizationProvisioned covers organizations created by the legacy
// webhook path.
func (n *Notifier) OrganizationProvisioned(org *models.Organization, owner *models.User) {
	n.organizationEvent(mq.KeyOrganizationProvisions, "Your organization is ready", organizationCreatedTpl, org, owner)
}

func (n *Notifier) SubscriptionActivated(org *models.Organization, owner *models.User) {
	n.organizationEvent(mq.KeySubscriptionActivated, "Your subscription is active", subscriptionActivatedTpl, org, owner)
}

func (n *Notifier) SubscriptionCanceled(org *models.Organization, owner *models.User) {
	n.organizationEvent(mq.KeySubscriptionCanceled, "Your subscription was cancelled", subscriptionCanceledTpl, org, owner)
}

func (n *Notifier) OrganizationToggled(org *models.Organization) {
	n.organizationEvent(mq.KeyOrganizationToggled, "", nil, org, nil)
}

func (n *Notifier) organizationEvent(key, subject string, tpl *template.Template, org *models.Organization, owner *models.User) {
	msg := newOrgMessage(org, owner)
	data := newOrgMail(org, owner)
	n.dispatch(key, func(ctx context.Context) error {
		if tpl != nil {
			if err := n.email(ctx, emailOf(owner), subject, tpl, data); err != nil {
				log.Warnf("organization %s: %s email failed: %v", org.ID, key, err)
			}
		}
		return n.bus.PublishJSON(ctx, key, msg)
	})
}

type welcomeMail struct {
	Name     string
	Email    string
	Password string
}

// UserWelcome sends the temporary password of an admin-created account.
func (n *Notifier) UserWelcome(u *models.User, tempPassword string) {
	data := welcomeMail{Name: u.Name, Email: u.Email, Password: tempPassword}
	n.dispatch("user.welcome", func(ctx context.Context) error {
		return n.email(ctx, u.Email, "Welcome to Medisched", welcomeTpl, data)
	})
}
