package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/availability"
	"github.com/medisched/medisched/internal/pkg/billing"
	"github.com/medisched/medisched/internal/pkg/booking"
	"github.com/medisched/medisched/internal/pkg/cache"
	"github.com/medisched/medisched/internal/pkg/config"
	"github.com/medisched/medisched/internal/pkg/directory"
	"github.com/medisched/medisched/internal/pkg/security"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries the services the controllers are built from.
type Dependencies struct {
	Config    config.Config
	Tokens    *security.Tokens
	Directory *directory.Directory
	Publisher *availability.Publisher
	Arbiter   *booking.Arbiter
	Billing   *billing.Synchronizer
	Cache     *cache.Cache
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the global user context middleware the API
	// routes depend on, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
