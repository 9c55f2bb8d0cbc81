package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/booking"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

type BookingController struct {
	arbiter *booking.Arbiter
}

func NewBookingController(arbiter *booking.Arbiter) *BookingController {
	return &BookingController{arbiter: arbiter}
}

type createBookingRequest struct {
	EventID string `json:"eventId"`
}

func (b *BookingController) HandleCreateBooking(c *fiber.Ctx) error {
	var req createBookingRequest
	if err := parseBody(c, &req); err != nil {
		return renderError(c, err)
	}
	created, err := b.arbiter.CreateBooking(c.UserContext(), usercontext.Principal(c), req.EventID)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleListBookings returns the caller's own bookings unless providerId or
// organizationId narrows the listing to a tenant view.
func (b *BookingController) HandleListBookings(c *fiber.Ctx) error {
	list, err := b.arbiter.ListBookings(c.UserContext(), usercontext.Principal(c), booking.ListFilter{
		ProviderID:     c.Query("providerId"),
		OrganizationID: c.Query("organizationId"),
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(list)
}

func (b *BookingController) HandleGetBooking(c *fiber.Ctx) error {
	found, err := b.arbiter.GetBooking(c.UserContext(), usercontext.Principal(c), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(found)
}

func (b *BookingController) HandleCancelBooking(c *fiber.Ctx) error {
	if err := b.arbiter.CancelBooking(c.UserContext(), usercontext.Principal(c), c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return success(c, "Booking cancelled successfully")
}
