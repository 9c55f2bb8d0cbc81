// Package availability manages the bookable slots providers publish.
package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
	"github.com/medisched/medisched/internal/pkg/validation"
)

const msgBookedNoDelete = "booked events cannot be deleted directly, cancel the booking first"

type CreateEventInput struct {
	ProviderID  string           `json:"providerId" validate:"required"`
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description"`
	Start       time.Time        `json:"start" validate:"required"`
	End         time.Time        `json:"end" validate:"required"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency" validate:"omitempty,len=3"`
}

// UpdateEventInput is a partial patch. Nil fields keep their stored value.
type UpdateEventInput struct {
	Title       *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description"`
	Start       *time.Time       `json:"start"`
	End         *time.Time       `json:"end"`
	Price       *decimal.Decimal `json:"price"`
	Currency    *string          `json:"currency" validate:"omitempty,len=3"`
}

type ListFilter struct {
	ProviderID     string
	DepartmentID   string
	OrganizationID string
	AvailableOnly  bool
}

type Publisher struct {
	events    repository.EventRepository
	providers repository.ProviderRepository
	gate      *tenantgate.Gate
	window    Window
	now       func() time.Time
}

func NewPublisher(repos *repository.Repositories, gate *tenantgate.Gate, window Window, now func() time.Time) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{
		events:    repos.Event,
		providers: repos.Provider,
		gate:      gate,
		window:    window,
		now:       now,
	}
}

func (p *Publisher) CreateEvent(ctx context.Context, caller tenantgate.Principal, in CreateEventInput) (*models.Event, error) {
	if err := p.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := p.checkTiming(in.Start, in.End); err != nil {
		return nil, err
	}

	provider, err := p.providers.GetByID(ctx, in.ProviderID)
	if err != nil {
		return nil, apperrors.FromStore(err, "provider not found")
	}
	if provider.UserID != caller.UserID {
		return nil, apperrors.Forbidden("only the provider can publish its events")
	}
	if provider.Department == nil {
		return nil, apperrors.Internal("provider has no department", nil)
	}
	if _, err := p.gate.RequireEnabledOrganization(ctx, provider.Department.OrganizationID); err != nil {
		return nil, err
	}

	e := &models.Event{
		ProviderID:  provider.ID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Start:       in.Start.UTC(),
		End:         in.End.UTC(),
		Duration:    models.DurationMinutes(in.Start, in.End),
		Currency:    normalizeCurrency(in.Currency),
	}
	if in.Price != nil {
		e.Price = decimal.NewNullDecimal(*in.Price)
	}
	if err := p.events.Create(ctx, e); err != nil {
		return nil, apperrors.Internal("failed to create event", err)
	}
	log.Infof("event %s created by provider %s (%s - %s)", e.ID, provider.ID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	return e, nil
}

// UpdateEvent merges the patch into the stored event, re-validates the
// merged bounds and recomputes the duration from them.
func (p *Publisher) UpdateEvent(ctx context.Context, caller tenantgate.Principal, eventID string, in UpdateEventInput) (*models.Event, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	e, err := p.ownedEvent(ctx, caller, eventID)
	if err != nil {
		return nil, err
	}
	if e.IsBooked {
		return nil, apperrors.Conflict("booked events cannot be modified")
	}

	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
		if e.Title == "" {
			return nil, apperrors.Validation("title is required")
		}
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.Start != nil {
		e.Start = in.Start.UTC()
	}
	if in.End != nil {
		e.End = in.End.UTC()
	}
	if in.Price != nil {
		e.Price = decimal.NewNullDecimal(*in.Price)
	}
	if in.Currency != nil {
		e.Currency = normalizeCurrency(*in.Currency)
	}
	if err := p.checkTiming(e.Start, e.End); err != nil {
		return nil, err
	}
	e.Duration = models.DurationMinutes(e.Start, e.End)

	if err := p.events.UpdateIfAvailable(ctx, e); err != nil {
		if errors.Is(err, repository.ErrEventAlreadyBooked) {
			return nil, apperrors.Conflict("booked events cannot be modified")
		}
		return nil, apperrors.FromStore(err, "event not found")
	}
	return e, nil
}

func (p *Publisher) DeleteEvent(ctx context.Context, caller tenantgate.Principal, eventID string) error {
	e, err := p.ownedEvent(ctx, caller, eventID)
	if err != nil {
		return err
	}
	if e.IsBooked {
		return apperrors.Conflict(msgBookedNoDelete)
	}
	if err := p.events.DeleteIfAvailable(ctx, e.ID); err != nil {
		if errors.Is(err, repository.ErrEventAlreadyBooked) {
			return apperrors.Conflict(msgBookedNoDelete)
		}
		return apperrors.FromStore(err, "event not found")
	}
	log.Infof("event %s deleted by user %s", e.ID, caller.UserID)
	return nil
}

// ListEvents without a provider, department or organization scope only
// returns open slots, so booked and past events stay inside their tenant.
func (p *Publisher) ListEvents(ctx context.Context, f ListFilter) ([]models.Event, error) {
	if f.ProviderID == "" && f.DepartmentID == "" && f.OrganizationID == "" {
		f.AvailableOnly = true
	}
	events, err := p.events.List(ctx, repository.EventFilter{
		ProviderID:     f.ProviderID,
		DepartmentID:   f.DepartmentID,
		OrganizationID: f.OrganizationID,
		AvailableOnly:  f.AvailableOnly,
		Now:            p.now(),
	})
	if err != nil {
		return nil, apperrors.Internal("failed to list events", err)
	}
	return events, nil
}

func (p *Publisher) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, err := p.events.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.FromStore(err, "event not found")
	}
	return e, nil
}

// ownedEvent loads an event its provider may change. Changes need an enabled
// organization, as publishing does.
func (p *Publisher) ownedEvent(ctx context.Context, caller tenantgate.Principal, eventID string) (*models.Event, error) {
	if err := p.gate.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	e, err := p.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperrors.FromStore(err, "event not found")
	}
	if e.Provider == nil || e.Provider.UserID != caller.UserID {
		return nil, apperrors.Forbidden("only the provider can change its events")
	}
	if e.Provider.Department == nil {
		return nil, apperrors.Internal("provider has no department", nil)
	}
	if _, err := p.gate.RequireEnabledOrganization(ctx, e.Provider.Department.OrganizationID); err != nil {
		return nil, err
	}
	return e, nil
}

// checkTiming rejects past starts before anything else about the bounds.
func (p *Publisher) checkTiming(start, end time.Time) error {
	if start.Before(p.now()) {
		return apperrors.Validation("cannot create events in the past")
	}
	return p.window.Check(start, end)
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return models.DefaultCurrency
	}
	return c
}
