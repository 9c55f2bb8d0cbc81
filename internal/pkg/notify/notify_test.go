package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/mail"
	"github.com/medisched/medisched/internal/pkg/mq"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type published struct {
	key string
	v   any
}

type recordingBus struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (b *recordingBus) PublishJSON(_ context.Context, key string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{key: key, v: v})
	return b.err
}

func bookingFixture() (*models.Booking, *models.Event, *models.User, *models.User) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	e := &models.Event{
		ID:         "evt-1",
		ProviderID: "prov-1",
		Title:      "Checkup",
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Provider: &models.Provider{
			ID:         "prov-1",
			Department: &models.Department{ID: "dep-1", OrganizationID: "org-1"},
		},
	}
	b := &models.Booking{ID: "bk-1", EventID: e.ID, ClientUserID: "client-1"}
	client := &models.User{ID: "client-1", Name: "Carla", Email: "carla@example.com"}
	provider := &models.User{ID: "provider-1", Name: "Dr. Pike", Email: "pike@example.com"}
	return b, e, client, provider
}

func TestBookingConfirmed(t *testing.T) {
	m := &recordingMailer{}
	bus := &recordingBus{}
	n := New(m, bus)

	b, e, client, provider := bookingFixture()
	n.BookingConfirmed(b, e, client, provider)
	n.Wait()

	require.Len(t, m.sent, 2)
	assert.Equal(t, "carla@example.com", m.sent[0].To)
	assert.Contains(t, m.sent[0].HTML, "Checkup")
	assert.Equal(t, "pike@example.com", m.sent[1].To)

	require.Len(t, bus.msgs, 1)
	assert.Equal(t, mq.KeyBookingCreated, bus.msgs[0].key)
	msg, ok := bus.msgs[0].v.(BookingMessage)
	require.True(t, ok)
	assert.Equal(t, "bk-1", msg.BookingID)
	assert.Equal(t, "org-1", msg.OrganizationID)
}

func TestFailuresAreSwallowed(t *testing.T) {
	m := &recordingMailer{err: errors.New("smtp down")}
	bus := &recordingBus{err: errors.New("broker down")}
	n := New(m, bus)

	b, e, client, provider := bookingFixture()
	assert.NotPanics(t, func() {
		n.BookingConfirmed(b, e, client, provider)
		n.BookingCancelled(b, e, provider)
		n.Wait()
	})
	assert.Len(t, m.sent, 3)
	assert.Len(t, bus.msgs, 2)
}

func TestSkipsMissingRecipient(t *testing.T) {
	m := &recordingMailer{}
	n := New(m, nil)

	org := &models.Organization{ID: "org-1", Name: "Clinic A"}
	n.SubscriptionActivated(org, nil)
	n.Wait()

	assert.Empty(t, m.sent)
}

func TestUserWelcomeContainsPassword(t *testing.T) {
	m := &recordingMailer{}
	n := New(m, nil)

	n.UserWelcome(&models.User{Name: "Olga", Email: "olga@example.com"}, "tmp-Secret1")
	n.Wait()

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].HTML, "tmp-Secret1")
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	b, e, client, provider := bookingFixture()
	assert.NotPanics(t, func() {
		n.BookingConfirmed(b, e, client, provider)
		n.Wait()
	})
}
