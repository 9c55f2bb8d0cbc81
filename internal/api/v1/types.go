package apiv1

import "github.com/gofiber/fiber/v2"

// Pong is the response for GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the v1 operations published in openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /events)
	GetEvents(c *fiber.Ctx) error
	// (GET /events/{id})
	GetEvent(c *fiber.Ctx, id string) error
}

// RegisterHandlers mounts every ServerInterface operation on router.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)
	router.Get("/events", si.GetEvents)
	router.Get("/events/:id", func(c *fiber.Ctx) error {
		return si.GetEvent(c, c.Params("id"))
	})
}
