// Package directory manages the tenant directory: users, organizations,
// departments, provider assignments and API keys.
package directory

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/cache"
	"github.com/medisched/medisched/internal/pkg/notify"
	"github.com/medisched/medisched/internal/pkg/statistics"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

const (
	cacheKeyPublicOrganizations = "directory:organizations:public"
	publicCacheExpiration       = 10 * time.Minute
)

type Directory struct {
	repos    *repository.Repositories
	gate     *tenantgate.Gate
	notifier *notify.Notifier
	cache    *cache.Cache
	stats    *statistics.Statistics
	now      func() time.Time
}

func New(repos *repository.Repositories, gate *tenantgate.Gate, notifier *notify.Notifier, c *cache.Cache, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		repos:    repos,
		gate:     gate,
		notifier: notifier,
		cache:    c,
		stats:    statistics.New(repos.Stats, c),
		now:      now,
	}
}

// PublicOrganization is the signup-facing view of a tenant.
type PublicOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Logo string `json:"logo,omitempty"`
}

// PublicOrganizations lists every organization by name. The result is
// cached when a cache is configured.
func (d *Directory) PublicOrganizations(ctx context.Context) ([]PublicOrganization, error) {
	var out []PublicOrganization
	hit, err := d.cache.GetJSON(ctx, cacheKeyPublicOrganizations, &out)
	if err != nil {
		log.Warnf("public organizations cache read failed: %v", err)
	}
	if hit {
		return out, nil
	}

	orgs, err := d.repos.Organization.List(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]PublicOrganization, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, PublicOrganization{ID: o.ID, Name: o.Name, Slug: o.Slug, Logo: o.Logo})
	}
	if err := d.cache.SetJSON(ctx, cacheKeyPublicOrganizations, out, publicCacheExpiration); err != nil {
		log.Warnf("public organizations cache write failed: %v", err)
	}
	return out, nil
}

// organizationsChanged drops every cached view derived from organizations.
func (d *Directory) organizationsChanged(ctx context.Context) {
	if err := d.cache.Delete(ctx, cacheKeyPublicOrganizations); err != nil {
		log.Warnf("public organizations cache invalidation failed: %v", err)
	}
	d.stats.Invalidate(ctx)
}

func (d *Directory) user(ctx context.Context, id string) *models.User {
	u, err := d.repos.User.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return u
}
