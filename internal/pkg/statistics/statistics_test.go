package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/fixtures"
)

func TestOverviewWithoutCache(t *testing.T) {
	db := fixtures.NewDB(t)
	fixtures.NewTenant(t, db, true)
	fixtures.NewTenant(t, db, false)

	s := New(repository.NewStatsRepository(db), nil)
	o, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, o.Organizations)
	assert.EqualValues(t, 1, o.EnabledOrganizations)
	assert.EqualValues(t, 4, o.Users)
	assert.EqualValues(t, 2, o.Providers)

	s.Invalidate(context.Background())
}

func TestDailyBookingsGroupsByDay(t *testing.T) {
	db := fixtures.NewDB(t)
	tenant := fixtures.NewTenant(t, db, true)
	client := fixtures.User(t, db, models.ROLE_CLIENT)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, created := range []time.Time{day.Add(9 * time.Hour), day.Add(15 * time.Hour), day.Add(33 * time.Hour), day.AddDate(0, 0, 9)} {
		e := fixtures.Event(t, db, tenant.Provider, day.AddDate(0, 1, 0).Add(time.Duration(i)*time.Hour), 30*time.Minute)
		require.NoError(t, db.Create(&models.Booking{EventID: e.ID, ClientUserID: client.ID, CreatedAt: created}).Error)
	}

	daily, err := repository.NewStatsRepository(db).DailyBookings(context.Background(), day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, []models.DailyStats{
		{Date: "2025-06-01", Count: 2},
		{Date: "2025-06-02", Count: 1},
	}, daily)
}
