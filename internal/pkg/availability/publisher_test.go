package availability

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/fixtures"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

var (
	now    = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	june1  = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	halfHr = 30 * time.Minute
)

type env struct {
	db     *gorm.DB
	pub    *Publisher
	tenant *fixtures.Tenant
	clock  *fixtures.Clock
}

func setup(t *testing.T, enabled bool) *env {
	db := fixtures.NewDB(t)
	repos := repository.NewRepositories(db)
	clock := fixtures.NewClock(now)
	return &env{
		db:     db,
		pub:    NewPublisher(repos, tenantgate.New(repos.Organization, repos.User), DefaultWindow(), clock.Now),
		tenant: fixtures.NewTenant(t, db, enabled),
		clock:  clock,
	}
}

func (e *env) provider() tenantgate.Principal {
	return tenantgate.Principal{UserID: e.tenant.ProviderUser.ID, Role: e.tenant.ProviderUser.Role}
}

func (e *env) input(start, end time.Time) CreateEventInput {
	return CreateEventInput{ProviderID: e.tenant.Provider.ID, Title: "Consultation", Start: start, End: end}
}

func TestCreateEvent(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	price := decimal.RequireFromString("49.90")
	in := e.input(june1, june1.Add(halfHr))
	in.Price = &price

	ev, err := e.pub.CreateEvent(ctx, e.provider(), in)
	require.NoError(t, err)
	assert.False(t, ev.IsBooked)
	assert.Equal(t, 30, ev.Duration)
	assert.Equal(t, models.DefaultCurrency, ev.Currency)

	stored, err := e.pub.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Valid)
	assert.True(t, price.Equal(stored.Price.Decimal))
	assert.True(t, june1.Equal(stored.Start))
}

func TestCreateEventRejections(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		code  string
	}{
		{"past start", now.Add(-time.Hour), now.Add(time.Hour), apperrors.CodeValidation},
		{"past start outside window", time.Date(2025, 4, 1, 5, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC), apperrors.CodeValidation},
		{"before opening", time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC), time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC), apperrors.CodeValidation},
		{"after closing", time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC), time.Date(2025, 6, 1, 20, 30, 0, 0, time.UTC), apperrors.CodeValidation},
		{"end before start", june1, june1.Add(-halfHr), apperrors.CodeValidation},
		{"spans two days", time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC), time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.pub.CreateEvent(ctx, e.provider(), e.input(tt.start, tt.end))
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}

	_, err := e.pub.CreateEvent(ctx, e.provider(), CreateEventInput{ProviderID: e.tenant.Provider.ID, Start: june1, End: june1.Add(halfHr)})
	assert.Equal(t, "title is required", apperrors.PublicMessage(err))
}

func TestCreateEventClosingHourIsInclusive(t *testing.T) {
	e := setup(t, true)

	start := time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)
	_, err := e.pub.CreateEvent(context.Background(), e.provider(), e.input(start, start.Add(halfHr)))
	assert.NoError(t, err)
}

func TestCreateEventAuthorization(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()
	in := e.input(june1, june1.Add(halfHr))

	_, err := e.pub.CreateEvent(ctx, tenantgate.Principal{UserID: e.tenant.Owner.ID, Role: models.ROLE_OWNER}, in)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = e.pub.CreateEvent(ctx, tenantgate.Principal{}, in)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

	in.ProviderID = "missing"
	_, err = e.pub.CreateEvent(ctx, e.provider(), in)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestCreateEventRequiresEnabledOrganization(t *testing.T) {
	e := setup(t, false)

	_, err := e.pub.CreateEvent(context.Background(), e.provider(), e.input(june1, june1.Add(halfHr)))
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestWindowUsesConfiguredTimezone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	w := Window{OpenHour: 8, CloseHour: 20, Location: berlin}

	// 07:00 UTC is 09:00 in Berlin during summer time.
	start := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	assert.NoError(t, w.Check(start, start.Add(halfHr)))

	// 18:00 UTC is the 20:00 closing hour in Berlin.
	late := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	assert.Error(t, w.Check(late, late.Add(halfHr)))
}

func TestUpdateEvent(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	ev, err := e.pub.CreateEvent(ctx, e.provider(), e.input(june1, june1.Add(halfHr)))
	require.NoError(t, err)

	// Moving only the end recomputes the duration against the stored start.
	newEnd := june1.Add(time.Hour)
	updated, err := e.pub.UpdateEvent(ctx, e.provider(), ev.ID, UpdateEventInput{End: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Duration)

	title := "Follow-up"
	updated, err = e.pub.UpdateEvent(ctx, e.provider(), ev.ID, UpdateEventInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Follow-up", updated.Title)
	assert.Equal(t, 60, updated.Duration)

	// A start after the stored end is an invalid range.
	lateStart := june1.Add(2 * time.Hour)
	_, err = e.pub.UpdateEvent(ctx, e.provider(), ev.ID, UpdateEventInput{Start: &lateStart})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	stored, err := e.pub.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Follow-up", stored.Title)
	assert.Equal(t, 60, stored.Duration)
}

func TestBookedEventsAreImmutable(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	ev := fixtures.Event(t, e.db, e.tenant.Provider, june1, halfHr)
	require.NoError(t, e.db.Model(ev).Update("is_booked", true).Error)

	title := "Changed"
	_, err := e.pub.UpdateEvent(ctx, e.provider(), ev.ID, UpdateEventInput{Title: &title})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	err = e.pub.DeleteEvent(ctx, e.provider(), ev.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	assert.Contains(t, apperrors.PublicMessage(err), "cancel the booking first")
}

func TestDeleteEvent(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	ev := fixtures.Event(t, e.db, e.tenant.Provider, june1, halfHr)

	err := e.pub.DeleteEvent(ctx, tenantgate.Principal{UserID: e.tenant.Owner.ID, Role: models.ROLE_OWNER}, ev.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	require.NoError(t, e.pub.DeleteEvent(ctx, e.provider(), ev.ID))

	_, err = e.pub.GetEvent(ctx, ev.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	assert.True(t, apperrors.Is(e.pub.DeleteEvent(ctx, e.provider(), ev.ID), apperrors.CodeNotFound))
}

func TestListEvents(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	other := fixtures.NewTenant(t, e.db, true)
	first := fixtures.Event(t, e.db, e.tenant.Provider, june1, halfHr)
	second := fixtures.Event(t, e.db, e.tenant.Provider, june1.Add(time.Hour), halfHr)
	past := fixtures.Event(t, e.db, e.tenant.Provider, now.Add(-48*time.Hour), halfHr)
	fixtures.Event(t, e.db, other.Provider, june1, halfHr)
	require.NoError(t, e.db.Model(second).Update("is_booked", true).Error)

	byProvider, err := e.pub.ListEvents(ctx, ListFilter{ProviderID: e.tenant.Provider.ID})
	require.NoError(t, err)
	require.Len(t, byProvider, 3)
	assert.Equal(t, past.ID, byProvider[0].ID)

	available, err := e.pub.ListEvents(ctx, ListFilter{OrganizationID: e.tenant.Org.ID, AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, first.ID, available[0].ID)

	byDept, err := e.pub.ListEvents(ctx, ListFilter{DepartmentID: other.Department.ID})
	require.NoError(t, err)
	assert.Len(t, byDept, 1)

	// Unscoped listings only show open slots across tenants.
	open, err := e.pub.ListEvents(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, ev := range open {
		assert.False(t, ev.IsBooked)
		assert.NotEqual(t, past.ID, ev.ID)
	}
}

func TestChangesRequireEnabledOrganization(t *testing.T) {
	e := setup(t, true)
	ctx := context.Background()

	ev := fixtures.Event(t, e.db, e.tenant.Provider, june1, halfHr)
	require.NoError(t, e.db.Model(e.tenant.Org).Update("enabled", false).Error)

	title := "Changed"
	_, err := e.pub.UpdateEvent(ctx, e.provider(), ev.ID, UpdateEventInput{Title: &title})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.Contains(t, apperrors.PublicMessage(err), "not enabled")

	err = e.pub.DeleteEvent(ctx, e.provider(), ev.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	stored, err := e.pub.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Consultation", stored.Title)
}
