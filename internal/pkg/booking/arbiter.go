// Package booking reserves events for clients. An event carries at most one
// booking, and its booked flag always agrees with the bookings table.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/notify"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

const msgAlreadyBooked = "event is already booked"

// ListFilter narrows a listing to a provider or an organization. The zero
// value lists the caller's own bookings.
type ListFilter struct {
	ProviderID     string
	OrganizationID string
}

type Arbiter struct {
	bookings  repository.BookingRepository
	events    repository.EventRepository
	providers repository.ProviderRepository
	users     repository.UserRepository
	gate      *tenantgate.Gate
	notifier  *notify.Notifier
	now       func() time.Time
}

func NewArbiter(repos *repository.Repositories, gate *tenantgate.Gate, notifier *notify.Notifier, now func() time.Time) *Arbiter {
	if now == nil {
		now = time.Now
	}
	return &Arbiter{
		bookings:  repos.Booking,
		events:    repos.Event,
		providers: repos.Provider,
		users:     repos.User,
		gate:      gate,
		notifier:  notifier,
		now:       now,
	}
}

func (a *Arbiter) CreateBooking(ctx context.Context, caller tenantgate.Principal, eventID string) (*models.Booking, error) {
	if err := a.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, apperrors.Validation("eventId is required")
	}

	e, err := a.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperrors.FromStore(err, "event not found")
	}
	if e.Provider == nil || e.Provider.Department == nil {
		return nil, apperrors.Internal("event has no provider department", nil)
	}
	if _, err := a.gate.RequireEnabledOrganization(ctx, e.Provider.Department.OrganizationID); err != nil {
		return nil, err
	}
	if e.IsBooked {
		return nil, apperrors.Conflict(msgAlreadyBooked)
	}
	if e.Start.Before(a.now()) {
		return nil, apperrors.Validation("cannot book past events")
	}

	b := &models.Booking{EventID: e.ID, ClientUserID: caller.UserID, Status: models.BookingStatusConfirmed}
	if err := a.bookings.CreateForAvailableEvent(ctx, b); err != nil {
		switch {
		case errors.Is(err, repository.ErrEventAlreadyBooked):
			return nil, apperrors.Conflict(msgAlreadyBooked)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperrors.NotFound("event not found")
		default:
			return nil, apperrors.Internal("failed to create booking", err)
		}
	}
	e.IsBooked = true
	e.Booking = nil
	b.Event = e
	log.Infof("booking %s created for event %s by user %s", b.ID, e.ID, caller.UserID)

	client, provider := a.parties(ctx, b.ClientUserID, e)
	a.notifier.BookingConfirmed(b, e, client, provider)
	return b, nil
}

// CancelBooking is reserved to the client who made the booking.
func (a *Arbiter) CancelBooking(ctx context.Context, caller tenantgate.Principal, bookingID string) error {
	if err := a.gate.RequireAuthenticated(caller); err != nil {
		return err
	}
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return apperrors.FromStore(err, "booking not found")
	}
	if b.ClientUserID != caller.UserID {
		return apperrors.Forbidden("only the client who made the booking can cancel it")
	}
	if err := a.bookings.DeleteAndRelease(ctx, b); err != nil {
		return apperrors.FromStore(err, "booking not found")
	}
	log.Infof("booking %s cancelled, event %s is available again", b.ID, b.EventID)

	if b.Event != nil {
		b.Event.IsBooked = false
		_, provider := a.parties(ctx, "", b.Event)
		a.notifier.BookingCancelled(b, b.Event, provider)
	}
	return nil
}

// GetBooking is visible to the client, the event's provider and the owner
// of the organization.
func (a *Arbiter) GetBooking(ctx context.Context, caller tenantgate.Principal, bookingID string) (*models.Booking, error) {
	if err := a.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperrors.FromStore(err, "booking not found")
	}
	if b.ClientUserID == caller.UserID {
		return b, nil
	}
	if b.Event != nil && b.Event.Provider != nil {
		if b.Event.Provider.UserID == caller.UserID {
			return b, nil
		}
		if d := b.Event.Provider.Department; d != nil {
			if a.gate.RequireRole(ctx, caller, d.OrganizationID, models.ROLE_OWNER) == nil {
				return b, nil
			}
		}
	}
	return nil, apperrors.Forbidden("not allowed to view this booking")
}

func (a *Arbiter) ListBookings(ctx context.Context, caller tenantgate.Principal, f ListFilter) ([]models.Booking, error) {
	if err := a.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	var rf repository.BookingFilter
	switch {
	case f.ProviderID != "":
		p, err := a.providers.GetByID(ctx, f.ProviderID)
		if err != nil {
			return nil, apperrors.FromStore(err, "provider not found")
		}
		if p.UserID != caller.UserID {
			if p.Department == nil {
				return nil, apperrors.Forbidden("not allowed to view these bookings")
			}
			if err := a.gate.RequireRole(ctx, caller, p.Department.OrganizationID, models.ROLE_OWNER); err != nil {
				return nil, err
			}
		}
		rf.ProviderID = p.ID
	case f.OrganizationID != "":
		if err := a.gate.RequireRole(ctx, caller, f.OrganizationID, models.ROLE_OWNER); err != nil {
			return nil, err
		}
		rf.OrganizationID = f.OrganizationID
	default:
		rf.ClientUserID = caller.UserID
	}

	bookings, err := a.bookings.List(ctx, rf)
	if err != nil {
		return nil, apperrors.Internal("failed to list bookings", err)
	}
	return bookings, nil
}

// parties resolves the users to notify. Lookup failures only cost the
// notification.
func (a *Arbiter) parties(ctx context.Context, clientID string, e *models.Event) (client, provider *models.User) {
	if clientID != "" {
		u, err := a.users.GetByID(ctx, clientID)
		if err != nil {
			log.Warnf("booking notification: client %s lookup failed: %v", clientID, err)
		} else {
			client = u
		}
	}
	if e.Provider != nil {
		u, err := a.users.GetByID(ctx, e.Provider.UserID)
		if err != nil {
			log.Warnf("booking notification: provider user %s lookup failed: %v", e.Provider.UserID, err)
		} else {
			provider = u
		}
	}
	return client, provider
}
