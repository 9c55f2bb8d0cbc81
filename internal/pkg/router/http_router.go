package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/medisched/medisched/app/controllers"
	"github.com/medisched/medisched/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins:     h.deps.Config.CORSOrigin,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.HeaderAPIKey,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		// fiber refuses credentials together with a wildcard origin
		AllowCredentials: h.deps.Config.CORSOrigin != "*",
	}))

	// Apply UserContext middleware globally so every handler sees the caller
	app.Use(middleware.UserContextMiddleware(h.deps.Tokens))

	app.Get("/", controllers.HandleIndex)
	app.Get("/health", controllers.HandleHealth)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
