// Package fixtures seeds in-memory databases for package tests.
package fixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/database"
)

var seq atomic.Int64

// Clock is a settable time source.
type Clock struct {
	now atomic.Pointer[time.Time]
}

func NewClock(t time.Time) *Clock {
	c := &Clock{}
	c.Set(t)
	return c
}

func (c *Clock) Now() time.Time {
	return *c.now.Load()
}

func (c *Clock) Set(t time.Time) {
	t = t.UTC()
	c.now.Store(&t)
}

func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func User(t testing.TB, db *gorm.DB, role string) *models.User {
	t.Helper()
	n := seq.Add(1)
	u := &models.User{
		Name:  fmt.Sprintf("User %d", n),
		Email: fmt.Sprintf("user%d@example.com", n),
		Role:  role,
	}
	require.NoError(t, u.SetPassword("password123"))
	require.NoError(t, db.Create(u).Error)
	return u
}

func Organization(t testing.TB, db *gorm.DB, enabled bool) *models.Organization {
	t.Helper()
	n := seq.Add(1)
	org := &models.Organization{
		Name: fmt.Sprintf("Clinic %d", n),
		Slug: fmt.Sprintf("clinic-%d", n),
	}
	require.NoError(t, db.Create(org).Error)
	if enabled {
		require.NoError(t, db.Model(org).Update("enabled", true).Error)
		org.Enabled = true
	}
	return org
}

func Member(t testing.TB, db *gorm.DB, org *models.Organization, u *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Member{OrganizationID: org.ID, UserID: u.ID, Email: u.Email}).Error)
}

func Department(t testing.TB, db *gorm.DB, org *models.Organization) *models.Department {
	t.Helper()
	d := &models.Department{OrganizationID: org.ID, Name: fmt.Sprintf("Department %d", seq.Add(1))}
	require.NoError(t, db.Create(d).Error)
	return d
}

func Provider(t testing.TB, db *gorm.DB, dept *models.Department, u *models.User) *models.Provider {
	t.Helper()
	p := &models.Provider{UserID: u.ID, DepartmentID: dept.ID, Specialization: "General"}
	require.NoError(t, db.Create(p).Error)
	return p
}

func Event(t testing.TB, db *gorm.DB, p *models.Provider, start time.Time, d time.Duration) *models.Event {
	t.Helper()
	e := &models.Event{
		ProviderID: p.ID,
		Title:      "Consultation",
		Start:      start.UTC(),
		End:        start.Add(d).UTC(),
		Duration:   models.DurationMinutes(start, start.Add(d)),
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

// Tenant is an enabled organization with one owner, one department and one
// provider, the smallest setup that can publish events.
type Tenant struct {
	Org          *models.Organization
	Owner        *models.User
	Department   *models.Department
	ProviderUser *models.User
	Provider     *models.Provider
}

func NewTenant(t testing.TB, db *gorm.DB, enabled bool) *Tenant {
	t.Helper()
	org := Organization(t, db, enabled)
	owner := User(t, db, models.ROLE_OWNER)
	Member(t, db, org, owner)
	dept := Department(t, db, org)
	pu := User(t, db, models.ROLE_PROVIDER)
	Member(t, db, org, pu)
	return &Tenant{
		Org:          org,
		Owner:        owner,
		Department:   dept,
		ProviderUser: pu,
		Provider:     Provider(t, db, dept, pu),
	}
}
