package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/fixtures"
	"github.com/medisched/medisched/internal/pkg/mail"
	"github.com/medisched/medisched/internal/pkg/notify"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type harness struct {
	db       *gorm.DB
	dir      *Directory
	clock    *fixtures.Clock
	notifier *notify.Notifier
	mailer   *recordingMailer
	admin    tenantgate.Principal
	tenant   *fixtures.Tenant
}

func setup(t *testing.T) *harness {
	db := fixtures.NewDB(t)
	repos := repository.NewRepositories(db)
	m := &recordingMailer{}
	n := notify.New(m, nil)
	clock := fixtures.NewClock(now)
	admin := fixtures.User(t, db, models.ROLE_ADMIN)
	return &harness{
		db:       db,
		dir:      New(repos, tenantgate.New(repos.Organization, repos.User), n, nil, clock.Now),
		clock:    clock,
		notifier: n,
		mailer:   m,
		admin:    as(admin),
		tenant:   fixtures.NewTenant(t, db, true),
	}
}

func as(u *models.User) tenantgate.Principal {
	return tenantgate.Principal{UserID: u.ID, Role: u.Role}
}

func TestCreateUser(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	created, err := h.dir.CreateUser(ctx, h.admin, CreateUserInput{Name: "Dana Doe", Email: " Dana@Example.com ", Role: models.ROLE_CLIENT})
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", created.User.Email)
	assert.True(t, created.User.NeedsPasswordChange)
	assert.Len(t, created.TempPassword, 14)
	assert.True(t, created.User.CheckPassword(created.TempPassword))

	h.notifier.Wait()
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "dana@example.com", h.mailer.sent[0].To)
	assert.Contains(t, h.mailer.sent[0].HTML, created.TempPassword)

	_, err = h.dir.CreateUser(ctx, h.admin, CreateUserInput{Name: "Dana Again", Email: "dana@example.com"})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	_, err = h.dir.CreateUser(ctx, h.admin, CreateUserInput{Email: "x@example.com"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = h.dir.CreateUser(ctx, as(h.tenant.Owner), CreateUserInput{Name: "Eve", Email: "eve@example.com"})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestCreateOrganization(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	client := fixtures.User(t, h.db, models.ROLE_CLIENT)

	org, err := h.dir.CreateOrganization(ctx, h.admin, CreateOrganizationInput{Name: "Acme Clinic", Slug: "Acme Clinic", OwnerID: client.ID})
	require.NoError(t, err)
	assert.Equal(t, "acme-clinic", org.Slug)
	assert.False(t, org.Enabled)

	var owner models.User
	require.NoError(t, h.db.First(&owner, "id = ?", client.ID).Error)
	assert.Equal(t, models.ROLE_OWNER, owner.Role)

	ok, err := repository.NewOrganizationRepository(h.db).IsMember(ctx, org.ID, client.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.dir.CreateOrganization(ctx, h.admin, CreateOrganizationInput{Name: "Other", Slug: "acme-clinic", OwnerID: client.ID})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	_, err = h.dir.CreateOrganization(ctx, h.admin, CreateOrganizationInput{Name: "Ghost", Slug: "ghost", OwnerID: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	h.notifier.Wait()
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, client.Email, h.mailer.sent[0].To)
}

func TestCreateOrganizationKeepsAdminRole(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	org, err := h.dir.CreateOrganization(ctx, h.admin, CreateOrganizationInput{Name: "Admin Clinic", Slug: "admin-clinic", OwnerID: h.admin.UserID})
	require.NoError(t, err)

	var u models.User
	require.NoError(t, h.db.First(&u, "id = ?", h.admin.UserID).Error)
	assert.Equal(t, models.ROLE_ADMIN, u.Role)
	assert.NotEmpty(t, org.ID)
}

func TestToggleOrganization(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	off := false

	org, err := h.dir.ToggleOrganization(ctx, h.admin, h.tenant.Org.ID, ToggleOrganizationInput{Enabled: &off})
	require.NoError(t, err)
	assert.False(t, org.Enabled)
	assert.Equal(t, "Organization disabled successfully", ToggleMessage(org.Enabled))

	_, err = h.dir.ToggleOrganization(ctx, h.admin, h.tenant.Org.ID, ToggleOrganizationInput{})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = h.dir.ToggleOrganization(ctx, h.admin, "missing", ToggleOrganizationInput{Enabled: &off})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestDeleteOrganizationCascades(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	fixtures.Event(t, h.db, h.tenant.Provider, now.Add(24*time.Hour), 30*time.Minute)

	require.NoError(t, h.dir.DeleteOrganization(ctx, h.admin, h.tenant.Org.ID))

	for _, m := range []any{&models.Department{}, &models.Provider{}, &models.Event{}, &models.Member{}} {
		var n int64
		require.NoError(t, h.db.Model(m).Count(&n).Error)
		assert.Zero(t, n)
	}
	assert.True(t, apperrors.Is(h.dir.DeleteOrganization(ctx, h.admin, h.tenant.Org.ID), apperrors.CodeNotFound))
}

func TestOverviewAndPublicList(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.dir.Overview(ctx, h.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, o.Stats.Organizations)
	assert.Len(t, o.Organizations, 1)

	_, err = h.dir.Overview(ctx, as(h.tenant.Owner))
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	public, err := h.dir.PublicOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, h.tenant.Org.Slug, public[0].Slug)
}

func TestDepartments(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	dept, err := h.dir.CreateDepartment(ctx, as(h.tenant.Owner), CreateDepartmentInput{OrganizationID: h.tenant.Org.ID, Name: "Cardiology"})
	require.NoError(t, err)

	// Role is checked before enablement.
	disabled := fixtures.NewTenant(t, h.db, false)
	_, err = h.dir.CreateDepartment(ctx, as(h.tenant.ProviderUser), CreateDepartmentInput{OrganizationID: disabled.Org.ID, Name: "X"})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.Equal(t, "insufficient permissions", apperrors.PublicMessage(err))
	_, err = h.dir.CreateDepartment(ctx, as(disabled.Owner), CreateDepartmentInput{OrganizationID: disabled.Org.ID, Name: "X"})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	assert.Contains(t, apperrors.PublicMessage(err), "not enabled")

	list, err := h.dir.ListDepartments(ctx, as(h.tenant.ProviderUser), h.tenant.Org.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = h.dir.ListDepartments(ctx, as(h.tenant.ProviderUser), "")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	assert.True(t, apperrors.Is(h.dir.DeleteDepartment(ctx, as(h.tenant.ProviderUser), dept.ID), apperrors.CodeForbidden))
	require.NoError(t, h.dir.DeleteDepartment(ctx, as(h.tenant.Owner), dept.ID))
	assert.True(t, apperrors.Is(h.dir.DeleteDepartment(ctx, as(h.tenant.Owner), dept.ID), apperrors.CodeNotFound))
}

func TestAssignProvider(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	client := fixtures.User(t, h.db, models.ROLE_CLIENT)
	in := AssignProviderInput{OrganizationID: h.tenant.Org.ID, DepartmentID: h.tenant.Department.ID, UserID: client.ID, Specialization: "Dermatology"}

	p, err := h.dir.AssignProvider(ctx, as(h.tenant.Owner), in)
	require.NoError(t, err)
	require.NotNil(t, p.User)
	assert.Equal(t, client.ID, p.User.ID)
	assert.Equal(t, models.ROLE_PROVIDER, p.User.Role)

	ok, err := repository.NewOrganizationRepository(h.db).IsMember(ctx, h.tenant.Org.ID, client.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.dir.AssignProvider(ctx, as(h.tenant.Owner), in)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	// The owner keeps the OWNER role when assigned as a provider.
	other := fixtures.Department(t, h.db, h.tenant.Org)
	p, err = h.dir.AssignProvider(ctx, as(h.tenant.Owner), AssignProviderInput{OrganizationID: h.tenant.Org.ID, DepartmentID: other.ID, UserID: h.tenant.Owner.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ROLE_OWNER, p.User.Role)

	foreign := fixtures.NewTenant(t, h.db, true)
	_, err = h.dir.AssignProvider(ctx, as(h.tenant.Owner), AssignProviderInput{OrganizationID: h.tenant.Org.ID, DepartmentID: foreign.Department.ID, UserID: fixtures.User(t, h.db, models.ROLE_CLIENT).ID})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = h.dir.AssignProvider(ctx, as(h.tenant.ProviderUser), in)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	list, err := h.dir.ListProviders(ctx, as(client), h.tenant.Org.ID, "")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	list, err = h.dir.ListProviders(ctx, as(client), h.tenant.Org.ID, other.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetAndDeleteProvider(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	fixtures.Event(t, h.db, h.tenant.Provider, now.Add(-time.Hour), 30*time.Minute)
	upcoming := fixtures.Event(t, h.db, h.tenant.Provider, now.Add(time.Hour), 30*time.Minute)

	p, err := h.dir.GetProvider(ctx, as(h.tenant.Owner), h.tenant.Provider.ID)
	require.NoError(t, err)
	require.Len(t, p.Events, 1)
	assert.Equal(t, upcoming.ID, p.Events[0].ID)

	assert.True(t, apperrors.Is(h.dir.DeleteProvider(ctx, as(h.tenant.ProviderUser), h.tenant.Provider.ID), apperrors.CodeForbidden))
	require.NoError(t, h.dir.DeleteProvider(ctx, as(h.tenant.Owner), h.tenant.Provider.ID))

	_, err = h.dir.GetProvider(ctx, as(h.tenant.Owner), h.tenant.Provider.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestPasswordChange(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	created, err := h.dir.CreateUser(ctx, h.admin, CreateUserInput{Name: "Finn", Email: "finn@example.com"})
	require.NoError(t, err)
	finn := as(created.User)

	status, err := h.dir.PasswordStatus(ctx, finn)
	require.NoError(t, err)
	assert.True(t, status.NeedsPasswordChange)

	err = h.dir.UpdatePassword(ctx, finn, UpdatePasswordInput{NewPassword: "short"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	require.NoError(t, h.dir.UpdatePassword(ctx, finn, UpdatePasswordInput{NewPassword: "a-much-better-one"}))
	status, err = h.dir.PasswordStatus(ctx, finn)
	require.NoError(t, err)
	assert.False(t, status.NeedsPasswordChange)

	_, err = h.dir.Authenticate(ctx, "finn@example.com", created.TempPassword)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	u, err := h.dir.Authenticate(ctx, "FINN@example.com", "a-much-better-one")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, u.ID)
}

func TestAPIKeys(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	created, err := h.dir.CreateAPIKey(ctx, h.admin, CreateAPIKeyInput{OrganizationID: h.tenant.Org.ID, Name: "kiosk", ExpiresInDays: 1})
	require.NoError(t, err)
	require.NotEmpty(t, created.Key)

	key, err := h.dir.ResolveAPIKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, h.tenant.Org.ID, key.OrganizationID)

	_, err = h.dir.ResolveAPIKey(ctx, "msk_unknown")
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))

	h.clock.Set(now.Add(48 * time.Hour))
	_, err = h.dir.ResolveAPIKey(ctx, created.Key)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	h.clock.Set(now)

	keys, err := h.dir.ListAPIKeys(ctx, h.admin, h.tenant.Org.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, h.dir.RevokeAPIKey(ctx, h.admin, created.APIKey.ID))
	_, err = h.dir.ResolveAPIKey(ctx, created.Key)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnauthorized))
	assert.True(t, apperrors.Is(h.dir.RevokeAPIKey(ctx, h.admin, created.APIKey.ID), apperrors.CodeNotFound))

	_, err = h.dir.CreateAPIKey(ctx, h.admin, CreateAPIKeyInput{OrganizationID: "missing", Name: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}
