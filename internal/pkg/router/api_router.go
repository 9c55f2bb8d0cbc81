package router

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/medisched/medisched/app/controllers"
	apiv1 "github.com/medisched/medisched/internal/api/v1"
	"github.com/medisched/medisched/internal/pkg/middleware"
)

const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
	// The cache uses redis database 0.
	limiterRedisDB = 1
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	auth := controllers.NewAuthController(h.deps.Directory, h.deps.Tokens)
	admin := controllers.NewAdminController(h.deps.Directory)
	orgs := controllers.NewOrganizationController(h.deps.Directory)
	events := controllers.NewEventController(h.deps.Publisher)
	bookings := controllers.NewBookingController(h.deps.Arbiter)
	billing := controllers.NewBillingController(h.deps.Billing)

	// Auth
	api.Post("/auth/login", auth.HandleLogin)
	api.Get("/auth/password", middleware.RequireAuth, auth.HandleCheckPasswordChange)
	api.Post("/auth/password", middleware.RequireAuth, auth.HandleUpdatePassword)
	api.Get("/auth/check-password-change", middleware.RequireAuth, auth.HandleCheckPasswordChange)
	api.Post("/auth/update-password", middleware.RequireAuth, auth.HandleUpdatePassword)

	// Admin
	adminGroup := api.Group("/admin", middleware.RequireAdmin)
	adminGroup.Post("/users", admin.HandleCreateUser)
	adminGroup.Get("/organizations", admin.HandleListOrganizations)
	adminGroup.Post("/organizations", admin.HandleCreateOrganization)
	adminGroup.Patch("/organizations/:id/toggle", admin.HandleToggleOrganization)
	adminGroup.Post("/organizations/:id/toggle", admin.HandleToggleOrganization)
	adminGroup.Delete("/organizations/:id", admin.HandleDeleteOrganization)
	adminGroup.Get("/overview", admin.HandleOverview)
	adminGroup.Get("/api-keys", admin.HandleListAPIKeys)
	adminGroup.Post("/api-keys", admin.HandleCreateAPIKey)
	adminGroup.Delete("/api-keys/:id", admin.HandleRevokeAPIKey)

	// Organizations and subscriptions
	api.Get("/organizations", orgs.HandlePublicOrganizations)
	api.Get("/organizations/:id/subscription", middleware.RequireAuth, billing.HandleSubscriptionStatus)
	api.Post("/subscriptions/checkout", middleware.RequireAuth, billing.HandleCreateCheckout)
	api.Post("/subscriptions/create-checkout", middleware.RequireAuth, billing.HandleCreateCheckout)

	// Departments and providers
	api.Post("/departments", middleware.RequireAuth, orgs.HandleCreateDepartment)
	api.Get("/departments", middleware.RequireAuth, orgs.HandleListDepartments)
	api.Delete("/departments/:id", middleware.RequireAuth, orgs.HandleDeleteDepartment)
	api.Post("/providers", middleware.RequireAuth, orgs.HandleAssignProvider)
	api.Get("/providers", middleware.RequireAuth, orgs.HandleListProviders)
	api.Get("/providers/:id", middleware.RequireAuth, orgs.HandleGetProvider)
	api.Delete("/providers/:id", middleware.RequireAuth, orgs.HandleDeleteProvider)

	// Events
	api.Post("/events", middleware.RequireAuth, events.HandleCreateEvent)
	api.Get("/events", middleware.RequireAuth, events.HandleListEvents)
	api.Get("/events/:id", middleware.RequireAuth, events.HandleGetEvent)
	api.Put("/events/:id", middleware.RequireAuth, events.HandleUpdateEvent)
	api.Delete("/events/:id", middleware.RequireAuth, events.HandleDeleteEvent)

	// Bookings
	api.Post("/bookings", middleware.RequireAuth, bookings.HandleCreateBooking)
	api.Get("/bookings", middleware.RequireAuth, bookings.HandleListBookings)
	api.Get("/bookings/:id", middleware.RequireAuth, bookings.HandleGetBooking)
	api.Delete("/bookings/:id", middleware.RequireAuth, bookings.HandleCancelBooking)

	// Subscription provider webhooks (signature-verified in the synchronizer)
	api.Post("/webhooks/subscription-provider", billing.HandleWebhook)

	// API v1 routes
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.Directory))
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer(h.deps.Publisher))
}

func (h ApiRouter) limiterConfig() limiter.Config {
	cfg := limiter.Config{
		Max:        apiRateLimit,
		Expiration: apiRateWindow,
		Next: func(c *fiber.Ctx) bool {
			// Providers retry deliveries on any non-2xx, never throttle them.
			return strings.HasPrefix(c.Path(), "/api/webhooks/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "rate limit exceeded",
			})
		},
	}

	// Share counters across instances when redis is available.
	if client := h.deps.Cache.GetClient(); client != nil {
		host, port := "localhost", 6379
		if hst, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = hst
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		cfg.Storage = redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Password: client.Options().Password,
			Database: limiterRedisDB,
			Reset:    false,
		})
	}
	return cfg
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
