package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/availability"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

type EventController struct {
	publisher *availability.Publisher
}

func NewEventController(publisher *availability.Publisher) *EventController {
	return &EventController{publisher: publisher}
}

func (e *EventController) HandleCreateEvent(c *fiber.Ctx) error {
	var in availability.CreateEventInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	event, err := e.publisher.CreateEvent(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(event)
}

// HandleListEvents filters by providerId, departmentId or organizationId.
// available=true hides booked and past events, and is implied when no
// filter is given.
func (e *EventController) HandleListEvents(c *fiber.Ctx) error {
	events, err := e.publisher.ListEvents(c.UserContext(), availability.ListFilter{
		ProviderID:     c.Query("providerId"),
		DepartmentID:   c.Query("departmentId"),
		OrganizationID: c.Query("organizationId"),
		AvailableOnly:  queryBool(c, "available"),
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(events)
}

func (e *EventController) HandleGetEvent(c *fiber.Ctx) error {
	event, err := e.publisher.GetEvent(c.UserContext(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(event)
}

func (e *EventController) HandleUpdateEvent(c *fiber.Ctx) error {
	var in availability.UpdateEventInput
	if err := parseBody(c, &in); err != nil {
		return renderError(c, err)
	}
	event, err := e.publisher.UpdateEvent(c.UserContext(), usercontext.Principal(c), c.Params("id"), in)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(event)
}

func (e *EventController) HandleDeleteEvent(c *fiber.Ctx) error {
	if err := e.publisher.DeleteEvent(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "")
}
