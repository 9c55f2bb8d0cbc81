package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
)

// ErrEventAlreadyBooked is returned when the compare-and-swap on an event's
// booked flag loses.
var ErrEventAlreadyBooked = errors.New("event already booked")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id, role string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, needsChange bool) error
	List(ctx context.Context, offset, limit int) ([]models.User, error)
}

// OrganizationRepository covers organizations and their memberships.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	// CreateWithOwner inserts the organization, the owner membership and
	// the owner's role in one transaction.
	CreateWithOwner(ctx context.Context, org *models.Organization, owner *models.User, ownerRole string) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context) ([]models.Organization, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SaveMetadata(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id string) error

	IsMember(ctx context.Context, orgID, userID string) (bool, error)
	// EnsureMember creates the membership if missing. It returns true when
	// a row was inserted.
	EnsureMember(ctx context.Context, member *models.Member) (bool, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, dept *models.Department) error
	GetByID(ctx context.Context, id string) (*models.Department, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Department, error)
	Delete(ctx context.Context, id string) error
}

type ProviderRepository interface {
	Create(ctx context.Context, p *models.Provider) error
	// GetByID preloads the department so callers can resolve the tenant.
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	GetByUserID(ctx context.Context, userID string) (*models.Provider, error)
	List(ctx context.Context, orgID, departmentID string) ([]models.Provider, error)
	GetWithUpcomingEvents(ctx context.Context, id string, now time.Time) (*models.Provider, error)
	Delete(ctx context.Context, id string) error
}

// EventFilter selects events by provider, department or organization, in
// that order of precedence.
type EventFilter struct {
	ProviderID     string
	DepartmentID   string
	OrganizationID string
	AvailableOnly  bool
	Now            time.Time
}

type EventRepository interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	// UpdateIfAvailable writes the mutable columns only while the event is
	// unbooked. It returns ErrEventAlreadyBooked otherwise.
	UpdateIfAvailable(ctx context.Context, e *models.Event) error
	// DeleteIfAvailable removes the event only while it is unbooked.
	DeleteIfAvailable(ctx context.Context, id string) error
	List(ctx context.Context, f EventFilter) ([]models.Event, error)
}

// BookingFilter scopes booking listings. Exactly one field is used.
type BookingFilter struct {
	ClientUserID   string
	ProviderID     string
	OrganizationID string
}

type BookingRepository interface {
	// CreateForAvailableEvent flips the event to booked and inserts the
	// booking atomically.
	CreateForAvailableEvent(ctx context.Context, b *models.Booking) error
	// DeleteAndRelease removes the booking and resets the event atomically.
	DeleteAndRelease(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, f BookingFilter) ([]models.Booking, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, k *models.APIKey) error
	GetByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	List(ctx context.Context, orgID string) ([]models.APIKey, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// Overview aggregates table totals for the admin dashboard.
type Overview struct {
	Organizations        int64 `json:"organizations"`
	EnabledOrganizations int64 `json:"enabledOrganizations"`
	Users                int64 `json:"users"`
	Members              int64 `json:"members"`
	Departments          int64 `json:"departments"`
	Providers            int64 `json:"providers"`
	Events               int64 `json:"events"`
	BookedEvents         int64 `json:"bookedEvents"`
	Bookings             int64 `json:"bookings"`
}

type StatsRepository interface {
	Overview(ctx context.Context) (*Overview, error)
	DailyBookings(ctx context.Context, start, end time.Time) ([]models.DailyStats, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Organization OrganizationRepository
	Department   DepartmentRepository
	Provider     ProviderRepository
	Event        EventRepository
	Booking      BookingRepository
	APIKey       APIKeyRepository
	Stats        StatsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Organization: NewOrganizationRepository(db),
		Department:   NewDepartmentRepository(db),
		Provider:     NewProviderRepository(db),
		Event:        NewEventRepository(db),
		Booking:      NewBookingRepository(db),
		APIKey:       NewAPIKeyRepository(db),
		Stats:        NewStatsRepository(db),
	}
}
